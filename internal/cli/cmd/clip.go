package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/berrythewa/clipsync/internal/clipboard"
	"github.com/berrythewa/clipsync/internal/types"
	"github.com/spf13/cobra"
)

func newClipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clip",
		Short: "Add content to the history without the clipboard",
	}
	cmd.AddCommand(newClipAddCmd())
	return cmd
}

func newClipAddCmd() *cobra.Command {
	var imagePath string

	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Record text (arguments or stdin) or an image file as a history entry",
		Long: `Record content as if it had been copied on this device.

Examples:
  clipsync clip add "some text"
  echo hello | clipsync clip add
  clipsync clip add --image screenshot.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readClipInput(cmd, args, imagePath)
			if err != nil {
				return err
			}

			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			w := clipboard.NewWatcher(clipboard.WatcherConfig{
				Store:         repo,
				DeviceID:      cfg.DeviceID,
				DeviceName:    cfg.DeviceName,
				MaxItems:      cfg.History.MaxItems,
				ThumbnailSize: cfg.Watcher.ThumbnailSize,
				Logger:        logger,
			})
			item, err := w.Capture(cmd.Context(), content)
			if err != nil {
				return err
			}
			if item == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Already in history")
				return nil
			}
			if useJSON {
				return printJSON(cmd.OutOrStdout(), item)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s\n", item.ID, item.Preview)
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "image file to record instead of text")
	return cmd
}

func readClipInput(cmd *cobra.Command, args []string, imagePath string) (*types.ClipboardContent, error) {
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		if _, _, err := clipboard.ImageDimensions(data); err != nil {
			return nil, fmt.Errorf("%s is not a supported image: %w", imagePath, err)
		}
		return &types.ClipboardContent{Type: types.TypeImage, Data: data}, nil
	}

	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	content := &types.ClipboardContent{Type: types.TypeText, Data: []byte(text)}
	if content.Empty() {
		return nil, fmt.Errorf("nothing to add")
	}
	return content, nil
}
