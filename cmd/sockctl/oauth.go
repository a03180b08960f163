package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/irctrakz/sockmgr/pkg/oauth"
	"github.com/irctrakz/sockmgr/pkg/socket"
)

type oauthOptions struct {
	method    string
	rawURL    string
	params    string
	body      string
	creds     oauth.Credentials
	nonce     string
	timestamp int64
	header    bool
}

func newOAuthCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "oauth [options] METHOD URL",
		Short:                 "compute an OAuth 1.0a HMAC-SHA1 signature",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(2),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(oauthOptions)
	c.Flags().StringVar(&opts.params, "params", "", "extra form-encoded `parameters`")
	c.Flags().StringVar(&opts.body, "body", "", "form-encoded request `body`")
	c.Flags().StringVar(&opts.creds.ConsumerKey, "consumer-key", os.Getenv("OAUTH_CONSUMER_KEY"), "consumer `key`")
	c.Flags().StringVar(&opts.creds.ConsumerSecret, "consumer-secret", os.Getenv("OAUTH_CONSUMER_SECRET"), "consumer `secret`")
	c.Flags().StringVar(&opts.creds.Token, "token", os.Getenv("OAUTH_TOKEN"), "access `token`")
	c.Flags().StringVar(&opts.creds.TokenSecret, "token-secret", os.Getenv("OAUTH_TOKEN_SECRET"), "access token `secret`")
	c.Flags().StringVar(&opts.nonce, "nonce", "", "fixed `nonce` (random when empty)")
	c.Flags().Int64Var(&opts.timestamp, "timestamp", 0, "fixed unix `seconds` (now when zero)")
	c.Flags().BoolVar(&opts.header, "header", false, "print an Authorization header instead of parameters")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.method, opts.rawURL = args[0], args[1]
		return runOAuth(g, opts, os.Stdout)
	}
	return c
}

func runOAuth(g *globalConfig, opts *oauthOptions, out io.Writer) error {
	scheme, host, port, resource, err := splitURL(opts.rawURL)
	if err != nil {
		return err
	}
	signer := oauth.NewSigner(opts.creds)
	if opts.nonce != "" {
		signer.Nonce = oauth.FixedNonce(opts.nonce)
	}
	if opts.timestamp != 0 {
		signer.Clock = oauth.FixedClock(time.Unix(opts.timestamp, 0))
	}

	sopts := g.options()
	sopts.Signer = signer
	reg := socket.NewRegistry(sopts)
	defer reg.Close()

	portStr := ""
	if port != 0 {
		portStr = fmt.Sprint(port)
	}
	params, err := reg.OAuth11(opts.method, scheme, host, portStr, resource, opts.params, opts.body)
	if err != nil {
		return err
	}
	if opts.header {
		fmt.Fprintf(out, "Authorization: %s\n", params.Header())
		return nil
	}
	for _, p := range params {
		fmt.Fprintf(out, "%s=%s\n", p.Key, p.Value)
	}
	return nil
}
