package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	dserrors "github.com/systmms/conjur-go/internal/errors"
	"github.com/systmms/conjur-go/pkg/conjur"
)

type listFlags struct {
	kind     string
	search   string
	actingAs string
}

func (f *listFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "variable", "Resource kind: variable, policy, user, host, group, layer or webservice")
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "Server-side search filter")
	cmd.Flags().StringVar(&f.actingAs, "acting-as", "", "Fully qualified role to list as, for example myorg:host:app")
}

func (f *listFlags) resourceKind() (conjur.ResourceKind, error) {
	kind, err := conjur.ParseResourceKind(strings.ToLower(f.kind))
	if err != nil {
		return conjur.ResourceKind{}, dserrors.UserError{
			Message:    err.Error(),
			Suggestion: "Use one of: variable, policy, user, host, group, layer, webservice",
		}
	}
	return kind, nil
}

func (f *listFlags) client(app *App) (*conjur.Client, error) {
	p, err := app.conjurProvider()
	if err != nil {
		return nil, err
	}
	client := p.Client()
	if f.actingAs != "" {
		client = client.ActingAs(f.actingAs)
	}
	return client, nil
}

func NewListCommand(app *App) *cobra.Command {
	var flags listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the resources visible to the current role",
		Long: `Print the fully qualified id of every matching resource, one per line.
Resources are fetched lazily, a page at a time.

Examples:
  conjur list
  conjur list --kind host --search jenkins
  conjur list --acting-as myorg:host:app`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := flags.resourceKind()
			if err != nil {
				return err
			}
			client, err := flags.client(app)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			listed := 0
			it := client.ListResources(kind, conjur.ListOptions{Search: flags.search})
			for id, err := range it.All(cmd.Context()) {
				if err != nil {
					return dserrors.SimplifyError(err)
				}
				if _, err := fmt.Fprintln(out, id.String()); err != nil {
					return err
				}
				listed++
			}
			app.logger().Debug("Listed %d %s resources", listed, kind)
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

func NewCountCommand(app *App) *cobra.Command {
	var flags listFlags

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the resources visible to the current role",
		Long: `Print how many resources match without listing them.

Examples:
  conjur count
  conjur count --kind host --search jenkins`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := flags.resourceKind()
			if err != nil {
				return err
			}
			client, err := flags.client(app)
			if err != nil {
				return err
			}

			count, err := client.CountResources(cmd.Context(), kind, flags.search)
			if err != nil {
				return dserrors.SimplifyError(err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), count)
			return err
		},
	}

	flags.register(cmd)

	return cmd
}
