package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	xhttp "InvSight/pkg/http"
)

var (
	apiURL          string
	predictSubject  string
	predictHorizon  int
	predictFeatures []string
	predictTimeout  time.Duration
)

var predictCmd = &cobra.Command{
	Use:     "forecast <demand|anomaly|pricing>",
	Aliases: []string{"predict"},
	Short:   "Call a running server's prediction endpoint",
	Long: `Sends one prediction request to POST /api/predict/<role>.
Feature values that parse as numbers are sent as numbers.

Example:
  go run ./cmd/app forecast demand --subject 42 --horizon 14
  go run ./cmd/app forecast pricing -f quantity=3 -f category=food`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"config": "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		features, err := parseFeatures(predictFeatures)
		if err != nil {
			return err
		}
		body := map[string]interface{}{"features": features}
		if predictSubject != "" {
			body["subject"] = predictSubject
		}
		if predictHorizon > 0 {
			body["horizon"] = predictHorizon
		}

		client := xhttp.NewClient(xhttp.WithBaseURL(apiURL), xhttp.WithTimeout(predictTimeout))
		var out json.RawMessage
		if err := client.SendAndParse(cmd.Context(), &xhttp.RequestOptions{
			Method: http.MethodPost,
			URL:    "/api/predict/" + args[0],
			Body:   body,
		}, &out); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// parseFeatures turns key=value pairs into a feature map.
func parseFeatures(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("feature %q: expected key=value", p)
		}
		k = strings.TrimSpace(k)
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out, nil
}

func init() {
	predictCmd.Flags().StringVar(&apiURL, "url", "http://localhost:8080", "server base URL")
	predictCmd.Flags().StringVar(&predictSubject, "subject", "", "subject id for demand forecasts")
	predictCmd.Flags().IntVar(&predictHorizon, "horizon", 0, "forecast horizon in steps")
	predictCmd.Flags().StringArrayVarP(&predictFeatures, "feature", "f", nil, "feature as key=value (repeatable)")
	predictCmd.Flags().DurationVar(&predictTimeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.AddCommand(predictCmd)
}
