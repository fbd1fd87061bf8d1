package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/apiclient"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/config"
)

// app carries what every command needs once flags are parsed
type app struct {
	client *apiclient.Client
	logger *slog.Logger
	out    io.Writer
	json   bool
}

// NewRootCmd builds the videoctl command tree. Output goes to out and logs to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	v := viper.New()
	a := &app{out: out}

	cmd := &cobra.Command{
		Use:   "videoctl",
		Short: "Turn programming instructions into recorded video tutorials",
		Long: `videoctl talks to the video instructions API.

A job goes through plan generation, optional plan edits, and execution,
which records the plan being performed and publishes a video.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadClient(v)
			a.logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
			a.client = apiclient.New(cfg.APIURL,
				apiclient.WithToken(cfg.Token),
				apiclient.WithLogger(a.logger),
			)
			a.json = v.GetBool("json")
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.String("api-url", "http://localhost:8000/api", "API base URL (env VIDEOCTL_API_URL)")
	flags.String("token", "", "Bearer token (env VIDEOCTL_TOKEN)")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.Bool("json", false, "Print JSON instead of text")
	_ = v.BindPFlags(flags)

	cmd.AddCommand(
		newGenerateCmd(a),
		newStatusCmd(a),
		newJobsCmd(a),
		newPlanCmd(a),
		newExecuteCmd(a),
		newRegenerateCmd(a),
		newDownloadCmd(a),
		newRunCmd(a),
	)
	return cmd
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
