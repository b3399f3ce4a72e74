package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/the-dev-tools/apirun/pkg/execution"
	"github.com/the-dev-tools/apirun/pkg/hook/exprhook"
	"github.com/the-dev-tools/apirun/pkg/idwrap"
	"github.com/the-dev-tools/apirun/pkg/model/mcollection"
	"github.com/the-dev-tools/apirun/pkg/model/menv"
	"github.com/the-dev-tools/apirun/pkg/model/mresult"
	"github.com/the-dev-tools/apirun/pkg/openyaml"
	"github.com/the-dev-tools/apirun/pkg/varstore"
	"github.com/the-dev-tools/apirun/pkg/varstore/sqlitestore"
)

var (
	envFilePath  string
	collFilePath string
	dbPath       string
	concurrency  int
	jsonOutput   bool
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&envFilePath, "env", "", "environment variables yaml file")
	sendCmd.Flags().StringVar(&collFilePath, "collection", "", "collection variables yaml file")
	sendCmd.Flags().StringVar(&dbPath, "db", "", "persist variables in a sqlite database at this path")
	sendCmd.Flags().IntVar(&concurrency, "concurrency", 4, "max requests in flight")
	sendCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as a JSON array")
}

var sendCmd = &cobra.Command{
	Use:   "send [request-file]...",
	Short: "Send requests from yaml files",
	Long: `Resolves each request file against the loaded variable scopes, runs its
scripts, and sends it. Files run concurrently; the command exits non-zero
when any request fails to complete or any script test fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logLevel := slog.LevelInfo
		if os.Getenv("LOG_LEVEL") == "debug" {
			logLevel = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

		store, envID, collID, closeStore, err := setupStore(ctx, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		exec := execution.New(store, exprhook.New(), logger)

		results := make([]mresult.ExecutionResult, len(args))
		var mu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, path := range args {
			g.Go(func() error {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				def, err := openyaml.ReadSingleRequest(data)
				if err != nil {
					return fmt.Errorf("parse %s: %w", path, err)
				}
				if def.Name == "" {
					def.Name = path
				}
				result := exec.Execute(gctx, *def, envID, collID)
				mu.Lock()
				results[i] = result
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if jsonOutput {
			if err := printJSON(results); err != nil {
				return err
			}
		} else {
			printSummary(results)
		}

		for _, r := range results {
			if !r.Success || r.TestsFailed() > 0 {
				cmd.SilenceUsage = true
				return errors.New("one or more requests failed")
			}
		}
		return nil
	},
}

// setupStore wires either the sqlite-backed store or the in-memory one and
// seeds it from the variable files given on the command line.
func setupStore(ctx context.Context, logger *slog.Logger) (varstore.Store, *idwrap.IDWrap, *idwrap.IDWrap, func(), error) {
	var envVars, collVars *openyaml.YamlEnvironment
	var err error

	if envFilePath != "" {
		if envVars, err = readVarFile(envFilePath); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	if collFilePath != "" {
		if collVars, err = readVarFile(collFilePath); err != nil {
			return nil, nil, nil, nil, err
		}
	}

	var envID, collID *idwrap.IDWrap
	noop := func() {}

	if dbPath != "" {
		store, err := sqlitestore.Open(dbPath, logger)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("open %s: %w", dbPath, err)
		}
		if envVars != nil {
			env := menv.Env{ID: idwrap.NewNow(), Name: envVars.Name}
			if err := store.CreateEnvironment(ctx, env); err != nil {
				return nil, nil, nil, nil, err
			}
			for _, v := range envVars.ToVars(env.ID) {
				if err := store.CreateVariable(ctx, varstore.ScopeKindEnvironment, v); err != nil {
					return nil, nil, nil, nil, err
				}
			}
			envID = &env.ID
		}
		if collVars != nil {
			node := mcollection.Node{ID: idwrap.NewNow(), Kind: mcollection.NodeKindRoot, Name: collVars.Name}
			if err := store.CreateCollectionNode(ctx, node); err != nil {
				return nil, nil, nil, nil, err
			}
			for _, v := range collVars.ToVars(node.ID) {
				if err := store.CreateVariable(ctx, varstore.ScopeKindCollection, v); err != nil {
					return nil, nil, nil, nil, err
				}
			}
			collID = &node.ID
		}
		return store, envID, collID, func() { _ = store.Close() }, nil
	}

	store := varstore.NewMemStore(logger)
	if envVars != nil {
		env := menv.Env{ID: idwrap.NewNow(), Name: envVars.Name}
		store.SetEnvironment(env, envVars.ToVars(env.ID))
		envID = &env.ID
	}
	if collVars != nil {
		node := mcollection.Node{ID: idwrap.NewNow(), Kind: mcollection.NodeKindRoot, Name: collVars.Name}
		store.SetCollectionNode(node, collVars.ToVars(node.ID))
		collID = &node.ID
	}
	return store, envID, collID, noop, nil
}

func readVarFile(path string) (*openyaml.YamlEnvironment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	env, err := openyaml.ReadSingleEnvironment(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return env, nil
}

func printJSON(results []mresult.ExecutionResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func printSummary(results []mresult.ExecutionResult) {
	for _, r := range results {
		status := "OK"
		if !r.Success {
			status = "FAIL"
		}
		line := fmt.Sprintf("[%s] %s %s", status, r.Request.Method, r.Request.URL)
		if r.Response != nil {
			line += fmt.Sprintf(" -> %d %s (%dms)", r.Response.Status, r.Response.StatusText, r.Response.Duration)
		}
		if r.ErrorMessage != "" {
			line += fmt.Sprintf(" error=%s (%s)", r.ErrorMessage, r.ErrorCode)
		}
		fmt.Println(line)
		for _, t := range r.TestResults {
			mark := "PASS"
			if !t.Passed {
				mark = "FAIL"
			}
			if t.Error != "" {
				fmt.Printf("  [%s] %s: %s\n", mark, t.Name, t.Error)
			} else {
				fmt.Printf("  [%s] %s\n", mark, t.Name)
			}
		}
		for _, c := range r.Console {
			fmt.Printf("  # %s\n", c)
		}
	}
}
