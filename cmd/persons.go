package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Manage person identities",
}

var personsRenameCmd = &cobra.Command{
	Use:   "rename <person-id> <name>",
	Short: "Rename a person and their tag",
	Long: `Give a person a real name. The person's tag is renamed along with them so
photo tagging stays in sync, and the person is marked as confirmed. The
rename is refused when another tag already uses the name.`,
	Args: cobra.ExactArgs(2),
	RunE: runPersonsRename,
}

var personsShowCmd = &cobra.Command{
	Use:   "show <person-id>",
	Short: "Show a person's details",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonsShow,
}

var personsFindCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Find persons by name",
	Long: `Search persons by display name. Matching ignores case and diacritics, so
"ana maria" finds "Ana María".`,
	Args: cobra.ExactArgs(1),
	RunE: runPersonsFind,
}

func init() {
	rootCmd.AddCommand(personsCmd)
	personsCmd.AddCommand(personsRenameCmd)
	personsCmd.AddCommand(personsShowCmd)
	personsCmd.AddCommand(personsFindCmd)
}

func parsePersonID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid person id %q", arg)
	}
	return id, nil
}

func runPersonsRename(cmd *cobra.Command, args []string) error {
	personID, err := parsePersonID(args[0])
	if err != nil {
		return err
	}
	newName := args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	renamed, err := stores.Meta.RenamePerson(cmd.Context(), personID, newName)
	if err != nil {
		return err
	}
	if !renamed {
		return fmt.Errorf("name %q is already in use by another tag", newName)
	}

	fmt.Printf("Person %d renamed to %q\n", personID, newName)
	return nil
}

func runPersonsShow(cmd *cobra.Command, args []string) error {
	personID, err := parsePersonID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	person, err := stores.Meta.GetPerson(cmd.Context(), personID)
	if err != nil {
		return err
	}

	fmt.Printf("Person %d\n", person.ID)
	fmt.Printf("  Name:      %s\n", person.DisplayName)
	fmt.Printf("  Confirmed: %v\n", person.IsConfirmed)
	if person.AvatarPhotoID != 0 {
		fmt.Printf("  Avatar:    photo %d\n", person.AvatarPhotoID)
	}
	if tag, err := stores.Meta.GetPersonTag(cmd.Context(), person.ID); err == nil {
		fmt.Printf("  Tag:       %s (%s)\n", tag.Text, tag.Color)
	}
	return nil
}

func runPersonsFind(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	persons, err := stores.Meta.FindPersonsByName(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		fmt.Println("No persons found")
		return nil
	}

	for _, p := range persons {
		confirmed := ""
		if p.IsConfirmed {
			confirmed = " (confirmed)"
		}
		fmt.Printf("%d\t%s%s\n", p.ID, p.DisplayName, confirmed)
	}
	return nil
}
