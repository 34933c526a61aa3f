package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/domain"
)

func projectsCmd(a *app) *cobra.Command {
	var filter domain.ProjectFilter

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := a.client().ListProjects(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("list projects: %s", apiclient.UserMessage(err))
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tPRICE")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Title, p.Category, priceLabel(p.Price))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Category, "category", "", "Only projects in this category")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Free-text search")
	cmd.Flags().BoolVar(&filter.Featured, "featured", false, "Only featured projects")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <project-id>",
		Short: "Show one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := a.client().GetProject(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get project: %s", apiclient.UserMessage(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", project.Title, project.ID)
			fmt.Fprintf(out, "Price:        %s\n", priceLabel(project.Price))
			if len(project.Technologies) > 0 {
				fmt.Fprintf(out, "Technologies: %s\n", strings.Join(project.Technologies, ", "))
			}
			if !project.IsActive {
				fmt.Fprintln(out, "This project is currently unavailable.")
			}
			if project.Description != "" {
				fmt.Fprintf(out, "\n%s\n", project.Description)
			}
			return nil
		},
	})

	return cmd
}

func purchasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purchases",
		Short: "List purchased projects and their download links",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireLogin(a); err != nil {
				return err
			}
			projects, err := a.client().MyProjects(cmd.Context())
			if err != nil {
				return fmt.Errorf("list purchases: %s", apiclient.UserMessage(err))
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No purchases yet")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSOURCE\tDEMO")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Title, orDash(p.SourceCode), orDash(p.DemoURL))
			}
			return w.Flush()
		},
	}
}

func priceLabel(p domain.Price) string {
	amount, err := p.Amount()
	if err != nil {
		return "n/a"
	}
	return domain.FormatAmount(amount)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
