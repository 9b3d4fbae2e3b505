package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/models"
)

func (c *cli) boxesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "boxes",
		Aliases:           []string{"box", "scenes", "b"},
		Short:             "List and edit the scenes of a project",
		PersistentPreRunE: c.openSession,
	}
	cmd.AddCommand(
		c.boxesListCmd(),
		c.boxesCreateCmd(),
		c.boxesUpdateCmd(),
		c.boxesDeleteCmd(),
		c.boxesMoveCmd(),
		c.boxesHeadlinerCmd(),
	)
	return cmd
}

func (c *cli) printBoxes(boxes []models.Box) error {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tNAME\tSTATUS\tASSETS\tHEADLINER")
	for i, b := range boxes {
		headliner := "-"
		if b.Headliner != nil {
			headliner = fmt.Sprint(*b.Headliner)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\n", i+1, b.ID, b.Name, b.Status, b.AssetsCount, headliner)
	}
	return w.Flush()
}

func (c *cli) boxesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List the scenes of a project in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.app.Collection.OpenProject(cmd.Context(), projectID); err != nil {
				return err
			}
			state := c.app.Collection.Snapshot()
			fmt.Fprintf(c.out, "%s (%s)\n", state.CurrentProject.Name, state.CurrentProject.AspectRatio)
			return c.printBoxes(state.Boxes.Data)
		},
	}
}

func (c *cli) boxesCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <project-id> <name>",
		Short: "Add a scene at the top of a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0])
			if err != nil {
				return err
			}
			box, err := c.app.CreateBox(cmd.Context(), models.BoxCreateRequest{Project: projectID, Name: args[1]})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%d\n", box.ID)
			return nil
		},
	}
}

func (c *cli) boxesUpdateCmd() *cobra.Command {
	var name, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a scene or change its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var patch models.BoxPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("status") {
				s := models.BoxStatus(status)
				if !s.Valid() {
					return api.ValidationError("status must be DRAFT, IN_PROGRESS, REVIEW or APPROVED")
				}
				patch.Status = &s
			}
			if patch == (models.BoxPatch{}) {
				return api.ValidationError("nothing to update")
			}

			_, err = c.app.UpdateBox(cmd.Context(), id, patch)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&status, "status", "", "DRAFT, IN_PROGRESS, REVIEW or APPROVED")
	return cmd
}

func (c *cli) boxesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a scene and its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.app.DeleteBox(cmd.Context(), id)
		},
	}
}

func (c *cli) boxesMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <position>",
		Short: "Move a scene to a position (1 is the top)",
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

			ctx := cmd.Context()
			box, err := c.app.Client.GetBox(ctx, id)
			if err != nil {
				return err
			}
			if err := c.app.Collection.OpenProject(ctx, box.Project); err != nil {
				return err
			}
			if err := c.app.MoveBox(ctx, id, pos); err != nil {
				return err
			}
			return c.printBoxes(c.app.Collection.Snapshot().Boxes.Data)
		},
	}
}

func (c *cli) boxesHeadlinerCmd() *cobra.Command {
	var unset bool
	cmd := &cobra.Command{
		Use:   "headliner <box-id> [asset-id]",
		Short: "Set the cover asset of a scene",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			boxID, err := parseID(args[0])
			if err != nil {
				return err
			}

			var assetID *int64
			switch {
			case unset && len(args) == 2:
				return api.ValidationError("give an asset id or --clear, not both")
			case unset:
			case len(args) == 2:
				id, err := parseID(args[1])
				if err != nil {
					return err
				}
				assetID = &id
			default:
				return api.ValidationError("give an asset id or --clear")
			}

			_, err = c.app.SetHeadliner(cmd.Context(), boxID, assetID)
			return err
		},
	}
	cmd.Flags().BoolVar(&unset, "clear", false, "remove the headliner")
	return cmd
}
