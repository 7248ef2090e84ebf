// Command restify sends a request to a REST API under a configured
// authorization context and prints the response body.
//
//	restify [-context name] [-scope s]... [-header "Name: value"]... [-data json] METHOD /path
//	restify [-context name] -revoke
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"restify/internal/circuitbreaker"
	"restify/internal/common/errors"
	commonhttp "restify/internal/common/http"
	"restify/internal/common/logging"
	"restify/internal/config"
	"restify/internal/oauth2"
	"restify/internal/rest"
	"restify/internal/service"
)

const userAgent = "restify/1.0"

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

type options struct {
	context string
	scopes  multiFlag
	headers multiFlag
	data    string
	revoke  bool
	method  string
	path    string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("restify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.context, "context", "", "authorization context to use (default: the default context)")
	fs.Var(&opts.scopes, "scope", "scope the request needs; repeatable")
	fs.Var(&opts.headers, "header", "extra request header as \"Name: value\"; repeatable")
	fs.StringVar(&opts.data, "data", "", "JSON request body")
	fs.BoolVar(&opts.revoke, "revoke", false, "revoke the stored authorization and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: restify [flags] METHOD /path")
		fmt.Fprintln(stderr, "       restify [-context name] -revoke")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.revoke {
		if fs.NArg() != 0 {
			return nil, errors.ValidationError("-revoke takes no request")
		}
		return opts, nil
	}

	if fs.NArg() != 2 {
		fs.Usage()
		return nil, errors.ValidationError("expected METHOD and path")
	}
	opts.method = strings.ToUpper(fs.Arg(0))
	opts.path = fs.Arg(1)

	for _, header := range opts.headers {
		if name, _, ok := strings.Cut(header, ":"); !ok || strings.TrimSpace(name) == "" {
			return nil, errors.ValidationError(fmt.Sprintf("invalid header %q", header))
		}
	}
	if opts.data != "" && !json.Valid([]byte(opts.data)) {
		return nil, errors.ValidationError("-data must be valid JSON")
	}

	return opts, nil
}

func main() {
	_ = godotenv.Load()

	closer, err := logging.InitGlobalLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "restify: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg := config.Load()
	err = run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	logging.MustSync()
	closer.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "restify: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return errors.ConfigError("invalid configuration").WithCause(err)
	}

	clientOpts := []commonhttp.ClientOption{
		commonhttp.WithTimeout(cfg.Timeout()),
		commonhttp.WithUserAgent(userAgent),
	}
	if cfg.InsecureSkipVerify {
		logging.Warn("TLS certificate verification is disabled")
		clientOpts = append(clientOpts, commonhttp.WithInsecureSkipVerify())
	}
	client := commonhttp.NewHTTPClient(clientOpts...)

	provider, err := oauth2.NewProvider(ctx, cfg, client, oauth2.WithPromptOutput(stderr))
	if err != nil {
		return err
	}
	defer provider.Close()

	authContext := provider.Default()
	if opts.context != "" {
		if authContext, err = provider.Context(opts.context); err != nil {
			return err
		}
	}
	ctx = context.WithValue(ctx, logging.ContextNameKey, authContext.Name())

	if opts.revoke {
		return revoke(ctx, authContext, stdout)
	}

	settings, err := contextSettings(cfg, authContext.Name())
	if err != nil {
		return err
	}

	strategy := newStrategy(cfg, client, authContext, settings)
	svc := service.New(strategy, service.WithPreProcess(func(ctx context.Context, req rest.Request) (rest.Request, error) {
		logging.WithContext(ctx).Debug("Sending request",
			logging.Field{Key: "method", Value: req.Method()},
			logging.Field{Key: "path", Value: req.Path()},
		)
		return nil, nil
	}))

	resp, err := service.Execute[rest.RawResponse](ctx, svc, buildRequest(opts))
	if err != nil {
		return err
	}
	return printBody(stdout, resp.Body)
}

func contextSettings(cfg *config.Config, name string) (config.AuthContext, error) {
	contexts, err := cfg.AuthContexts()
	if err != nil {
		return config.AuthContext{}, err
	}
	for _, ac := range contexts {
		if ac.Name == name {
			return ac, nil
		}
	}
	return config.AuthContext{}, errors.NotFoundError(fmt.Sprintf("authorization context %q", name))
}

// newStrategy wires the processor for ac. Contexts without a grant send requests unauthorized.
func newStrategy(cfg *config.Config, client *http.Client, c *oauth2.Context, ac config.AuthContext) service.Strategy {
	apiClient := client
	if cfg.ETagCache {
		apiClient = &http.Client{
			Timeout:       client.Timeout,
			Transport:     rest.NewETagTransport(client.Transport, rest.WithETagTTL(cfg.ETagCacheTTL())),
			CheckRedirect: client.CheckRedirect,
		}
	}

	urls := rest.NewURLBuilder(ac.BaseURL)
	if ac.APIKey != "" {
		urls = urls.WithAPIKey(ac.APIKey)
	}

	processorOpts := []rest.ProcessorOption{
		rest.WithBreaker(circuitbreaker.NewGoBreaker("api:"+ac.Name, circuitbreaker.HTTPConfig, logging.GetGlobalLogger())),
	}

	if ac.Grant == config.GrantNone {
		return service.NewDefaultStrategy(rest.NewHTTPProcessor(apiClient, urls, processorOpts...))
	}

	headers := rest.DefaultHeaderFactory().With(oauth2.NewAuthorizingHeaderCollector(c))
	processorOpts = append(processorOpts, rest.WithHeaderFactory(headers))
	return oauth2.NewRetryingStrategy(c, rest.NewHTTPProcessor(apiClient, urls, processorOpts...))
}

func buildRequest(opts *options) *rest.BasicRequest {
	req := rest.NewRequest(opts.method, opts.path).WithScopes(opts.scopes...)
	for _, header := range opts.headers {
		name, value, _ := strings.Cut(header, ":")
		req.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if opts.data != "" {
		req.WithBody(json.RawMessage(opts.data))
	}
	return req
}

func revoke(ctx context.Context, c *oauth2.Context, stdout io.Writer) error {
	restored, err := c.RestoreAuthorization(ctx)
	if err != nil {
		return err
	}
	if err := c.ClearAuthorization(ctx); err != nil {
		return err
	}

	if restored {
		fmt.Fprintf(stdout, "Authorization for %q revoked\n", c.Name())
	} else {
		fmt.Fprintf(stdout, "No stored authorization for %q\n", c.Name())
	}
	return nil
}

func printBody(w io.Writer, body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(body)
	}
	if !bytes.HasSuffix(pretty.Bytes(), []byte("\n")) {
		pretty.WriteByte('\n')
	}

	_, err := w.Write(pretty.Bytes())
	return err
}
