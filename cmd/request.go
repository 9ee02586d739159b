package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pyhu26/post-woman/internal/engine"
	"github.com/pyhu26/post-woman/internal/format"
	"github.com/pyhu26/post-woman/internal/history"
	"github.com/pyhu26/post-woman/internal/model"
	"github.com/pyhu26/post-woman/internal/storage"
)

var (
	headers          []string
	params           []string
	data             string
	requestName      string
	noHistory        bool
	saveToCollection string
)

func init() {
	for _, m := range []model.Method{
		model.MethodGet,
		model.MethodPost,
		model.MethodPut,
		model.MethodPatch,
		model.MethodDelete,
	} {
		name := strings.ToLower(string(m))
		methodCmd := &cobra.Command{
			Use:   name + " <url>",
			Short: fmt.Sprintf("Send a %s request", m),
			Args:  cobra.ExactArgs(1),
			Run:   runRequest(m),
		}
		addRequestFlags(methodCmd)
		methodCmd.Flags().BoolVar(&noHistory, "no-history", false, "Don't save to history")
		methodCmd.Flags().StringVarP(&saveToCollection, "collection", "c", "", "Save to collection (created if missing)")
		rootCmd.AddCommand(methodCmd)
	}
}

// addRequestFlags registers the flags that describe a request
func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Add header 'Key: Value' (can be used multiple times)")
	cmd.Flags().StringArrayVarP(&params, "query", "q", []string{}, "Add query parameter key=value (can be used multiple times)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body (JSON string or @filename)")
	cmd.Flags().StringVar(&requestName, "name", "", "Request name")
}

func runRequest(method model.Method) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		req, err := buildRequest(requestName, method, args[0])
		if err != nil {
			fatal("Invalid request", err)
		}

		// Warn if body contains potentially sensitive data
		if !noHistory && appConfig().History.Enabled && history.SensitiveBody(req.Body) {
			fmt.Fprintln(os.Stderr, "WARNING: Request body may contain sensitive data (e.g., passwords, tokens). This will be stored in history.")
			fmt.Fprintln(os.Stderr, "         Use --no-history flag to skip storing this request.")
		}

		dispatcher := withAliases(newDispatcher(!noHistory))
		resp, err := dispatcher.Send(cmd.Context(), req)
		if err != nil {
			fatal("Request failed", err)
		}

		format.PrintResponse(resp, verbose)

		if saveToCollection != "" {
			saveRequestToCollection(saveToCollection, req)
		}

		if resp.TransportFailure() {
			closeApp()
			os.Exit(1)
		}
	}
}

// buildRequest assembles a request from the shared request flags
func buildRequest(name string, method model.Method, url string) (model.Request, error) {
	req := model.NewRequest(name, method, url)

	for _, h := range headers {
		key, value, ok := parseHeader(h)
		if !ok {
			return req, fmt.Errorf("malformed header %q, expected 'Key: Value'", h)
		}
		req.Headers = append(req.Headers, model.NewKeyValue(key, value, true))
	}

	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return req, fmt.Errorf("malformed query parameter %q, expected key=value", p)
		}
		req.Params = append(req.Params, model.NewKeyValue(strings.TrimSpace(key), value, true))
	}

	body := data
	if filename, ok := strings.CutPrefix(body, "@"); ok {
		content, err := readBodyFromFile(filename)
		if err != nil {
			return req, fmt.Errorf("failed to read file: %w", err)
		}
		body = content
	}
	if body != "" && !method.AllowsBody() {
		return req, fmt.Errorf("%s requests do not carry a body", method)
	}
	req.Body = body

	return req, nil
}

func parseHeader(h string) (string, string, bool) {
	key, value, ok := strings.Cut(h, ":")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func saveRequestToCollection(collectionName string, req model.Request) {
	log := appLogger()
	cols := collections()

	col, err := cols.GetOrCreate(collectionName)
	if err != nil {
		format.PrintError(fmt.Sprintf("Failed to save to collection: %v", err))
		return
	}

	// Credentials are never stored in collections
	if _, err := cols.AddRequest(col.ID, "", history.RedactRequest(req)); err != nil {
		format.PrintError(fmt.Sprintf("Failed to save to collection: %v", err))
		return
	}

	log.Debug("Saved request to collection",
		zap.String("collection", col.Name),
		zap.String("request", req.ID),
	)
	format.PrintSuccess(fmt.Sprintf("Saved to collection '%s'", col.Name))
}

// withAliases resolves URL aliases on every request before it is sent.
// Aliases are loaded once per command.
func withAliases(next engine.Dispatcher) engine.Dispatcher {
	aliases := loadAliases(openStore())
	return engine.DispatcherFunc(func(ctx context.Context, req model.Request) (*model.Response, error) {
		req.URL = resolveAlias(aliases, req.URL)
		return next.Send(ctx, req)
	})
}

func loadAliases(store storage.Storage) map[string]string {
	aliases, err := store.LoadAliases()
	if err != nil {
		appLogger().Warn("Failed to load aliases", zap.Error(err))
		return nil
	}
	return aliases.Aliases
}

// resolveAlias resolves URL aliases to their full URLs.
// If the URL starts with http:// or https://, it's returned as-is.
// Otherwise, it checks if the first path segment is a known alias.
func resolveAlias(aliases map[string]string, url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}

	aliasName, path, _ := strings.Cut(url, "/")
	baseURL, exists := aliases[aliasName]
	if !exists {
		return url
	}

	// Combine base URL with path (auto-normalize trailing slashes)
	baseURL = strings.TrimSuffix(baseURL, "/")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return baseURL
	}
	return baseURL + "/" + path
}

// readBodyFromFile reads file content with path validation to prevent directory traversal
func readBodyFromFile(filename string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	realWd := wd
	if resolved, err := filepath.EvalSymlinks(wd); err == nil {
		realWd = resolved
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}
	cleanPath := filepath.Clean(absPath)

	if !withinDir(wd, cleanPath) {
		return "", fmt.Errorf("access denied: file must be within current directory")
	}

	realPath, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		realPath = cleanPath
	} else if !withinDir(realWd, realPath) {
		return "", fmt.Errorf("access denied: symlink target must be within current directory")
	}

	content, err := os.ReadFile(realPath)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func withinDir(dir, path string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
