package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MegaGrindStone/webchat/internal/chat"
	"github.com/MegaGrindStone/webchat/internal/services"
	"github.com/MegaGrindStone/webchat/internal/transcript"
	"github.com/MegaGrindStone/webchat/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

const errLoggerKey = "err"

type options struct {
	configPath string
	baseURL    string
	chat       string
	theme      string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:          "webchat",
		Short:        "Terminal client for the chat web application",
		Long:         "Chat with the bot of a chat web application from the terminal. Replies are streamed, and fall back to a static request when streaming fails.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "path of the config file (default <user config dir>/webchat/config.yaml)")
	flags.StringVar(&opts.baseURL, "base-url", "", "base url of the backend")
	flags.StringVar(&opts.chat, "chat", "", "id of the chat to open at start")
	flags.StringVar(&opts.theme, "theme", "", "markdown theme, dark or light")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, or error")

	return cmd
}

// apply overrides cfg with the flags that were set.
func (o options) apply(cfg *config) {
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.chat != "" {
		cfg.Chat = o.chat
	}
	if o.theme != "" {
		cfg.Theme = o.theme
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
}

func run(ctx context.Context, opts options) (err error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("error getting user config dir: %w", err)
	}
	cfgPath := filepath.Join(cfgDir, "webchat")
	if err := os.MkdirAll(cfgPath, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	cfgFilePath := opts.configPath
	if cfgFilePath == "" {
		cfgFilePath = filepath.Join(cfgPath, "config.yaml")
	}
	cfg, err := loadConfig(cfgFilePath)
	if err != nil {
		return err
	}
	opts.apply(&cfg)
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = filepath.Join(cfgPath, "webchat.log")
	}
	logger, logFile, err := newLogger(cfg, logPath)
	if err != nil {
		return err
	}

	index, err := services.NewBoltDB(filepath.Join(cfgPath, "store.db"))
	if err != nil {
		_ = logFile.Close()
		return err
	}

	defer func() {
		var result *multierror.Error
		if err != nil {
			result = multierror.Append(result, err)
			logger.Error("Exiting with error", slog.String(errLoggerKey, err.Error()))
		}
		if cerr := index.Close(); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close index: %w", cerr))
		}
		if cerr := logFile.Close(); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close log file: %w", cerr))
		}
		err = result.ErrorOrNil()
	}()

	api, err := services.NewAPI(cfg.BaseURL, cfg.Headers, logger)
	if err != nil {
		return err
	}

	renderer, err := services.NewGlamour(cfg.Theme, cfg.WordWrap)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	viewer := tui.NewViewer()
	t := transcript.New(renderer, viewer, logger)
	session := chat.NewSession(api, t, logger)
	controller := chat.NewController(ctx, session, t, api, api, api, logger)

	model := tui.New(ctx, tui.Config{
		Controller: controller,
		Session:    session,
		Transcript: t,
		Viewer:     viewer,
		Backend:    api,
		Index:      index,
		NewRenderer: func(theme string) (transcript.Renderer, error) {
			return services.NewGlamour(theme, cfg.WordWrap)
		},
		ExportRenderer: services.NewGoldmark(),
		Themes:         services.Themes,
		Theme:          cfg.Theme,
		DisplayName:    cfg.DisplayName,
		InitialChat:    cfg.Chat,
		Logger:         logger,
	})

	logger.Info("Starting", slog.String("baseURL", cfg.BaseURL), slog.String("theme", cfg.Theme))

	p := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

func newLogger(cfg config, path string) (*slog.Logger, io.Closer, error) {
	level, err := cfg.logLevel()
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}

	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), f, nil
}
