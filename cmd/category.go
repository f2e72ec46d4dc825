package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/voicelocal/voicelocal/internal/feed"
	"github.com/voicelocal/voicelocal/internal/models"
	"github.com/voicelocal/voicelocal/internal/output"
	"github.com/voicelocal/voicelocal/internal/store"
)

var (
	categoryName  string
	categoryColor string
	categoryDesc  string
)

var categoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"cat"},
	Short:   "Manage the category registry",
	Long: `The registry lists the categories offered to reporters and to triage.
Issues may still use any category string; deleting a registry entry leaves
existing issues unchanged.`,
}

var categoryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered categories with issue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return categoryListRun()
	},
}

var categoryAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a category (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return categoryAddRun(args[0])
	},
}

var categoryUpdateCmd = &cobra.Command{
	Use:   "update <category>",
	Short: "Rename or recolor a category (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return categoryUpdateRun(cmd.Flags(), args[0])
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:     "delete <category>",
	Aliases: []string{"rm"},
	Short:   "Remove a category from the registry (admin)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return categoryDeleteRun(args[0])
	},
}

func init() {
	categoryAddCmd.Flags().StringVar(&categoryColor, "color", "", "Display color as #RRGGBB")
	categoryAddCmd.Flags().StringVar(&categoryDesc, "desc", "", "What belongs in this category")
	bindCategoryUpdateFlags(categoryUpdateCmd.Flags())

	for _, c := range []*cobra.Command{categoryUpdateCmd, categoryDeleteCmd} {
		c.ValidArgsFunction = completeCategories
	}

	categoryCmd.AddCommand(categoryListCmd)
	categoryCmd.AddCommand(categoryAddCmd)
	categoryCmd.AddCommand(categoryUpdateCmd)
	categoryCmd.AddCommand(categoryDeleteCmd)
	rootCmd.AddCommand(categoryCmd)
}

func bindCategoryUpdateFlags(fs *pflag.FlagSet) {
	fs.StringVar(&categoryName, "name", "", "New name")
	fs.StringVar(&categoryColor, "color", "", "New color as #RRGGBB (empty string clears)")
	fs.StringVar(&categoryDesc, "desc", "", "New description")
}

// completeCategories offers registry names for --category flags and
// category arguments.
func completeCategories(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	s, err := getStore()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cats, err := s.ListCategories(context.Background())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, c := range cats {
		if strings.HasPrefix(models.CategoryKey(c.Name), models.CategoryKey(toComplete)) {
			names = append(names, c.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func categoryListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	cats, err := s.ListCategories(ctx)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		ui.Info("No categories registered. Add one with 'voicelocal category add <name>'.")
		return nil
	}
	issues, err := s.ListIssues(ctx)
	if err != nil {
		return err
	}
	usage := map[string]int{}
	for _, u := range feed.Categories(issues) {
		usage[u.Name] = u.Count
	}

	table := ui.Table([]string{"ID", "Name", "Color", "Issues", "Description"})
	for _, c := range cats {
		_ = table.Append([]string{
			shortID(c.ID),
			c.Name,
			c.Color,
			fmt.Sprintf("%d", usage[models.CategoryKey(c.Name)]),
			c.Description,
		})
	}
	_ = table.Render()
	return nil
}

func requireAdminActor() (*models.User, error) {
	actor, err := currentActor()
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("managing categories requires an admin")
	}
	return actor, nil
}

func categoryAddRun(name string) error {
	if _, err := requireAdminActor(); err != nil {
		return err
	}
	in := models.CategoryInput{Name: name, Color: categoryColor, Description: categoryDesc}
	if err := in.Validate(); err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would register category %q", strings.TrimSpace(name))
		return nil
	}
	c, err := s.CreateCategory(context.Background(), in)
	if err != nil {
		return fmt.Errorf("add category: %w", err)
	}
	ui.Success("Registered category %s (%s)", output.Cyan(c.Name), shortID(c.ID))
	return nil
}

func categoryUpdateRun(flags *pflag.FlagSet, ref string) error {
	if _, err := requireAdminActor(); err != nil {
		return err
	}
	var patch models.CategoryPatch
	if flags.Changed("name") {
		patch.Name = models.Ptr(categoryName)
	}
	if flags.Changed("color") {
		patch.Color = models.Ptr(categoryColor)
	}
	if flags.Changed("desc") {
		patch.Description = models.Ptr(categoryDesc)
	}
	if patch.Empty() {
		return fmt.Errorf("nothing to update: pass --name, --color or --desc")
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	c, err := findCategory(ctx, s, ref)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would update category %s", c.Name)
		return nil
	}
	updated, err := s.UpdateCategory(ctx, c.ID, patch)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	ui.Success("Updated category %s", output.Cyan(updated.Name))
	return nil
}

func categoryDeleteRun(ref string) error {
	if _, err := requireAdminActor(); err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	c, err := findCategory(ctx, s, ref)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would remove category %s", c.Name)
		return nil
	}
	if err := s.DeleteCategory(ctx, c.ID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	ui.Success("Removed category %s; issues using it keep their category", output.Cyan(c.Name))
	return nil
}

// findCategory resolves a category by name (ignoring case), full ID or
// unique ID prefix.
func findCategory(ctx context.Context, s store.Store, ref string) (*models.Category, error) {
	cats, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	key := models.CategoryKey(ref)
	for _, c := range cats {
		if models.CategoryKey(c.Name) == key || c.ID == ref {
			return c, nil
		}
	}

	upper := strings.ToUpper(strings.TrimSpace(ref))
	var matches []*models.Category
	for _, c := range cats {
		if upper != "" && strings.HasPrefix(c.ID, upper) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &store.NotFoundError{Kind: "category", ID: ref}
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous category ID %s: matches %d categories", ref, len(matches))
	}
}
