package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-import/cmd/api"
	"github.com/FACorreiaa/statement-import/internal/domain/import/progress"
	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
)

const progressBuffer = 64

func newProcessCommand(root *rootOptions) *cobra.Command {
	var owner string
	var connection string
	var out string
	var notifyPostgres bool

	cmd := &cobra.Command{
		Use:   "process FILE...",
		Short: "Extract and categorize transactions from statement files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := parseOwner(owner)
			if err != nil {
				return err
			}
			if connection == "" {
				connection = uuid.NewString()
			}

			files, err := readUploads(args)
			if err != nil {
				return err
			}

			sess, err := root.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.stop()
			cfg, logger := sess.cfg, sess.logger

			hub := progress.NewHub(progressBuffer, logger)
			defer hub.Close()

			deps, err := api.InitDependencies(cfg, logger, api.Options{
				Notifier:       hub,
				NotifyPostgres: notifyPostgres,
			})
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			events, cancel := hub.Subscribe(connection)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				printProgress(cmd.ErrOrStderr(), events)
			}()

			outcome, err := deps.ImportService.Process(cmd.Context(), files, connection, ownerID)
			cancel()
			wg.Wait()
			if err != nil {
				return err
			}

			return writeOutcome(cmd.OutOrStdout(), out, outcome)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner (user) id the transactions belong to (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().StringVar(&connection, "connection", "", "connection id progress events are published for (default random)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the outcome JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&notifyPostgres, "notify-postgres", false, "also publish progress with pg_notify")

	return cmd
}

func parseOwner(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid owner id %q: %w", raw, err)
	}
	return id, nil
}

// readUploads loads every path, keeping the base name for format detection.
func readUploads(paths []string) ([]importservice.UploadedFile, error) {
	files := make([]importservice.UploadedFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		files = append(files, importservice.UploadedFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

func printProgress(w io.Writer, events <-chan progress.Event) {
	for ev := range events {
		fmt.Fprintf(w, "%s %3d%%\n", ev.FileName, ev.Percentage)
	}
}

func writeOutcome(stdout io.Writer, path string, outcome *importservice.BatchOutcome) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		return fmt.Errorf("writing outcome: %w", err)
	}
	return nil
}

func readOutcome(path string) (*importservice.BatchOutcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var outcome importservice.BatchOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &outcome, nil
}
