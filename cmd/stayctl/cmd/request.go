package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/spf13/cobra"
)

func newRequestCmd(a *app) *cobra.Command {
	var data string
	var query []string
	var headers []string

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an arbitrary API request with the stored session",
		Example: `  stayctl request GET /bookings/me --query status=confirmed
  stayctl request POST /bookings/b-1/cancel
  stayctl request PATCH /users/profile --data '{"bio":"Trail runner"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []goSession.RequestOption
			for _, kv := range query {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("query %q must be key=value", kv)
				}
				opts = append(opts, goSession.WithQuery(k, v))
			}
			for _, kv := range headers {
				k, v, ok := strings.Cut(kv, ":")
				if !ok {
					return fmt.Errorf("header %q must be Name: value", kv)
				}
				opts = append(opts, goSession.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
			}

			var body any
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data is not valid JSON")
				}
				body = json.RawMessage(data)
			}

			resp, err := a.client.Request(cmd.Context(), strings.ToUpper(args[0]), args[1], body, opts...)
			if err != nil {
				var httpErr *goSession.HTTPError
				if errors.As(err, &httpErr) && len(httpErr.Body) > 0 {
					_ = a.renderRaw(cmd.ErrOrStderr(), httpErr.Body)
				}
				return err
			}
			if resp.StatusCode == http.StatusNoContent {
				return nil
			}
			return a.renderRaw(cmd.OutOrStdout(), resp.Body)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "query parameter key=value (repeatable)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header 'Name: value' (repeatable)")
	return cmd
}
