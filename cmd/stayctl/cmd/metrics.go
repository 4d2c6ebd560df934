package cmd

import (
	"fmt"
	"sync"

	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

func newMetricsCmd(a *app) *cobra.Command {
	var (
		path        string
		count       int
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Request an endpoint and print the client metrics",
		Long: `Send --count GET requests to --path over --concurrency workers, then print
the session client's metrics in Prometheus text format. Useful to check that
concurrent requests hitting an expired session share a single refresh.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 || concurrency < 1 {
				return fmt.Errorf("--count and --concurrency must be positive")
			}

			jobs := make(chan struct{})
			var wg sync.WaitGroup
			var mu sync.Mutex
			var failures int
			for i := 0; i < concurrency; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range jobs {
						if _, err := a.client.Get(cmd.Context(), path); err != nil {
							mu.Lock()
							failures++
							mu.Unlock()
						}
					}
				}()
			}
		send:
			for i := 0; i < count; i++ {
				select {
				case jobs <- struct{}{}:
				case <-cmd.Context().Done():
					break send
				}
			}
			close(jobs)
			wg.Wait()

			families, err := promexport.NewPrometheusExporter(a.client).Registry().Gather()
			if err != nil {
				return err
			}
			enc := expfmt.NewEncoder(cmd.OutOrStdout(), expfmt.NewFormat(expfmt.TypeTextPlain))
			for _, mf := range families {
				if err := enc.Encode(mf); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d requests, %d failed\n", count, failures)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "/users/me", "path to request")
	cmd.Flags().IntVar(&count, "count", 10, "number of requests")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "concurrent workers")
	return cmd
}
