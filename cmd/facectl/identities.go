package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/your-org/facelog/internal/models"
)

var (
	listLimit  int
	listOffset int

	aliasIdentification string
	aliasStudentID      string
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect and label identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities in id order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, total, err := db.ListIdentitiesWithAliases(cmd.Context(), listLimit, listOffset)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No identities found in database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tDIM\tIDENTIFICATION NO\tSTUDENT ID\tCREATED")
		fmt.Fprintln(w, "--\t---\t-----------------\t----------\t-------")
		for _, r := range rows {
			idn, sid := "-", "-"
			if r.Aliases != nil {
				idn, sid = orDash(r.Aliases.IdentificationNumber), orDash(r.Aliases.StudentIDNumber)
			}
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", r.ID, len(r.Embedding), idn, sid, r.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d of %d identities\n", len(rows), total)
		return nil
	},
}

var identitiesAliasCmd = &cobra.Command{
	Use:   "alias <identity_id>",
	Short: "Attach an identification number and/or student id number to an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id < 1 {
			return fmt.Errorf("invalid identity id %q", args[0])
		}
		if aliasIdentification == "" && aliasStudentID == "" {
			return errors.New("set --identification-number or --student-id-number")
		}

		err = db.SetAliases(cmd.Context(), &models.IdentityAliases{
			IdentityID:           id,
			IdentificationNumber: aliasIdentification,
			StudentIDNumber:      aliasStudentID,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Aliases of identity %d updated.\n", id)
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	identitiesListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum rows to print")
	identitiesListCmd.Flags().IntVar(&listOffset, "offset", 0, "rows to skip")

	identitiesAliasCmd.Flags().StringVar(&aliasIdentification, "identification-number", "", "national identification number")
	identitiesAliasCmd.Flags().StringVar(&aliasStudentID, "student-id-number", "", "student id number")

	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(identitiesAliasCmd)
	rootCmd.AddCommand(identitiesCmd)
}
