package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sceneboard/internal/api"
	"github.com/sceneboard/internal/models"
)

func (c *cli) projectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "projects",
		Aliases:           []string{"project", "p"},
		Short:             "List and edit projects",
		PersistentPreRunE: c.openSession,
	}
	cmd.AddCommand(c.projectsListCmd(), c.projectsCreateCmd(), c.projectsUpdateCmd(), c.projectsDeleteCmd())
	return cmd
}

func (c *cli) projectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Collection.FetchProjects(cmd.Context()); err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tASPECT\tSCENES\tAPPROVED")
			for _, p := range c.app.Collection.Snapshot().Projects.Data {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", p.ID, p.Name, p.Status, p.AspectRatio, p.BoxesCount, p.BoxesApprovedCount)
			}
			return w.Flush()
		},
	}
}

func (c *cli) projectsCreateCmd() *cobra.Command {
	var aspect string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.ProjectCreateRequest{Name: args[0], AspectRatio: models.AspectRatio(aspect)}
			if req.AspectRatio != "" && !req.AspectRatio.Valid() {
				return api.ValidationError("aspect must be 16:9 or 9:16")
			}
			p, err := c.app.CreateProject(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%d\n", p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&aspect, "aspect", "", "aspect ratio: 16:9 or 9:16")
	return cmd
}

func (c *cli) projectsUpdateCmd() *cobra.Command {
	var name, status, aspect string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a project or change its status or aspect ratio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var patch models.ProjectPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("status") {
				s := models.ProjectStatus(status)
				if !s.Valid() {
					return api.ValidationError("status must be ACTIVE, PAUSED or COMPLETED")
				}
				patch.Status = &s
			}
			if flags.Changed("aspect") {
				a := models.AspectRatio(aspect)
				if !a.Valid() {
					return api.ValidationError("aspect must be 16:9 or 9:16")
				}
				patch.AspectRatio = &a
			}
			if patch == (models.ProjectPatch{}) {
				return api.ValidationError("nothing to update")
			}

			_, err = c.app.UpdateProject(cmd.Context(), id, patch)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&name, "name", "", "new name")
	flags.StringVar(&status, "status", "", "ACTIVE, PAUSED or COMPLETED")
	flags.StringVar(&aspect, "aspect", "", "16:9 or 9:16")
	return cmd
}

func (c *cli) projectsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and its scenes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.app.DeleteProject(cmd.Context(), id)
		},
	}
}
