package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/models"
	"github.com/sceneboard/internal/upload"
)

func (c *cli) assetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "assets",
		Aliases:           []string{"asset", "a"},
		Short:             "List, upload and arrange the assets of a scene",
		PersistentPreRunE: c.openSession,
	}
	cmd.AddCommand(
		c.assetsListCmd(),
		c.assetsUploadCmd(),
		c.assetsFavoriteCmd(),
		c.assetsDeleteCmd(),
		c.assetsMoveCmd(),
	)
	return cmd
}

func parseFilter(s string) (models.AssetFilter, error) {
	switch f := models.AssetFilter(s); f {
	case "", models.FilterAll:
		return models.FilterAll, nil
	case models.FilterFavorite, models.FilterImage, models.FilterVideo:
		return f, nil
	}
	return "", api.ValidationError("filter must be all, favorite, image or video")
}

func (c *cli) printAssets(assets []models.Asset, headliner *int64) error {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTYPE\tFAV\tSTATUS\tURL")
	for i, a := range assets {
		mark := ""
		if a.IsFavorite {
			mark = "*"
		}
		if headliner != nil && *headliner == a.ID {
			mark += "H"
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n", i+1, a.ID, a.AssetType, mark, a.Status, a.FileURL)
	}
	return w.Flush()
}

func (c *cli) printOpenBox() error {
	state := c.app.Collection.Snapshot()
	var headliner *int64
	if state.CurrentBox != nil {
		headliner = state.CurrentBox.Headliner
	}
	return c.printAssets(c.app.VisibleAssets(), headliner)
}

func (c *cli) assetsListCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list <box-id>",
		Short: "List the assets of a scene in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			boxID, err := parseID(args[0])
			if err != nil {
				return err
			}
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}
			if err := c.app.Collection.OpenBox(cmd.Context(), boxID); err != nil {
				return err
			}
			c.app.SetAssetFilter(f)
			return c.printOpenBox()
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all, favorite, image or video")
	return cmd
}

func (c *cli) assetsUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <box-id> <file>...",
		Short: "Upload files into a scene, one at a time",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			boxID, err := parseID(args[0])
			if err != nil {
				return err
			}

			var files []upload.File
			for _, path := range args[1:] {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				files = append(files, upload.File{Name: filepath.Base(path), Body: f})
			}

			ctx := cmd.Context()
			if err := c.app.Collection.OpenBox(ctx, boxID); err != nil {
				return err
			}
			summary, err := c.app.Upload(ctx, boxID, files)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return api.ValidationError("%d of %d uploads failed", summary.Failed, len(files))
			}
			return nil
		},
	}
}

func (c *cli) assetsFavoriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "favorite <id>",
		Short: "Toggle the favorite mark of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, err = c.app.ToggleFavorite(cmd.Context(), id)
			return err
		},
	}
}

func (c *cli) assetsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			asset, err := c.app.Client.GetAsset(ctx, id)
			if err != nil {
				return err
			}
			if err := c.app.Collection.OpenBox(ctx, asset.Box); err != nil {
				return err
			}
			return c.app.DeleteAsset(ctx, id)
		},
	}
}

func (c *cli) assetsMoveCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "move <id> <position>",
		Short: "Move an asset to a position within the filtered list (1 is the first)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pos, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			asset, err := c.app.Client.GetAsset(ctx, id)
			if err != nil {
				return err
			}
			if err := c.app.Collection.OpenBox(ctx, asset.Box); err != nil {
				return err
			}
			if !f.Matches(*asset) {
				return api.ValidationError("asset %d is hidden by the %s filter", id, f)
			}
			c.app.SetAssetFilter(f)
			if err := c.app.MoveAsset(ctx, id, pos); err != nil {
				return err
			}
			return c.printOpenBox()
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "all, favorite, image or video")
	return cmd
}
