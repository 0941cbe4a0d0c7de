package cli

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"

	"github.com/transifex/jsonapi-client/internal/config"
	"github.com/transifex/jsonapi-client/pkg/jsonapi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func GetClient(cacert string) (http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cacert != "" {
		data, err := os.ReadFile(cacert)
		if err != nil {
			return http.Client{}, err
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(data) {
			return http.Client{}, fmt.Errorf(
				"could not load certificates from file '%s'",
				cacert,
			)
		}

		transport.TLSClientConfig = &tls.Config{RootCAs: certPool}
	}

	return http.Client{Transport: transport}, nil
}

/*
NewLogger
Warnings go to stderr in a compact form; with 'verbose' every debug entry is
shown too.
*/
func NewLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	return cfg.Build()
}

type ConnectionOptions struct {
	ConfigPath string
	Host       string
	Token      string
	CACert     string
	Logger     *zap.Logger
}

/*
NewConnection
Build a connection out of the configuration file and the command line
overrides. The token given explicitly wins over the one of the host.
*/
func NewConnection(
	options ConnectionOptions,
) (*jsonapi.Connection, *config.Config, *config.Host, error) {
	cfg, err := config.LoadFromPath(options.ConfigPath)
	if err != nil {
		return nil, nil, nil, err
	}
	host, err := cfg.SelectHost(options.Host)
	if err != nil {
		return nil, nil, nil, err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := GetClient(options.CACert)
	if err != nil {
		return nil, nil, nil, err
	}

	token := options.Token
	if token == "" {
		token = host.Token
	}
	transport := &jsonapi.HTTPTransport{
		Token:   token,
		Client:  client,
		Headers: map[string]string{"User-Agent": "jsonapi-client/" + Version},
	}
	if host.RequestsPerSecond > 0 {
		burst := int(host.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		transport.Limiter = rate.NewLimiter(
			rate.Limit(host.RequestsPerSecond), burst,
		)
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &jsonapi.Connection{
		APIBase:   host.APIBase,
		Transport: transport,
		Registry:  registry,
		Logger:    logger.With(zap.String("host", host.Name)),
	}
	return api, cfg, host, nil
}

/*
LookupType
Return the configured resource type. Types missing from the configuration get
a descriptor with no declared fields: they can be addressed by id, to delete
them for example, but none of their attributes are read or written.
*/
func LookupType(api *jsonapi.Connection, name string) *jsonapi.ResourceType {
	resourceType, exists := api.Registry.Lookup(name)
	if exists {
		return resourceType
	}
	logger(api).Warn("type is not configured", zap.String("type", name))
	return jsonapi.DefineType(name).Build()
}

func logger(api *jsonapi.Connection) *zap.Logger {
	if api.Logger == nil {
		return zap.NewNop()
	}
	return api.Logger
}
