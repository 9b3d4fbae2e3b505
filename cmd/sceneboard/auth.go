package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sceneboard/internal/models"
)

// readSecret returns flag, or the first line of in when flag is empty.
func readSecret(in io.Reader, out io.Writer, prompt, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readSecret(cmd.InOrStdin(), c.errOut, "Password: ", password)
			if err != nil {
				return err
			}
			return c.app.Login(cmd.Context(), args[0], pw)
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when omitted)")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var req models.UserCreateRequest
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Username = args[0]
			pw, err := readSecret(cmd.InOrStdin(), c.errOut, "Password: ", req.Password)
			if err != nil {
				return err
			}
			req.Password = pw
			if req.PasswordConfirm == "" {
				req.PasswordConfirm = pw
			}
			return c.app.Register(cmd.Context(), req)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Email, "email", "", "email address")
	flags.StringVarP(&req.Password, "password", "p", "", "password (read from stdin when omitted)")
	flags.StringVar(&req.PasswordConfirm, "password-confirm", "", "password confirmation (defaults to --password)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.Logout(cmd.Context())
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			u := c.app.Session.Snapshot().User
			fmt.Fprintf(c.out, "%s <%s> (id %d)\n", u.Username, u.Email, u.ID)
			if q := u.Quota; q != nil {
				fmt.Fprintf(c.out, "projects: %d/%d  scenes per project: %d  assets per scene: %d\n",
					q.UsedProjects, q.MaxProjects, q.MaxBoxesPerProject, q.MaxAssetsPerBox)
			}
			return nil
		},
	}
}
