package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/aide/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "memories",
		Short: "Inspect the long-term memory store",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all memories for a user",
		Run:   runMemoriesList,
	}

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by keyword",
		Args:  cobra.MinimumNArgs(1),
		Run:   runMemoriesSearch,
	}
	searchCmd.Flags().IntP("limit", "l", 10, "Max results")

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete one memory by id",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoriesDelete,
	}

	cmd.AddCommand(listCmd, searchCmd, deleteCmd)
	RootCmd.AddCommand(cmd)
}

func openStore() (memory.Store, error) {
	cfg := loadConfig()
	return memory.NewSQLiteStore(cfg.MemoryDBPath, func(o *memory.SQLiteStoreOptions) {
		o.Logger = newLogger()
	})
}

func printRecords(records []memory.Record) {
	if len(records) == 0 {
		fmt.Println("No memories found.")
		return
	}
	for _, r := range records {
		line := fmt.Sprintf("[%d] %s", r.ID, r.Content)
		if len(r.Tags) > 0 {
			line += fmt.Sprintf(" (tags: %s)", strings.Join(r.Tags, ", "))
		}
		line += fmt.Sprintf("  accessed %dx, last %s", r.AccessCount, r.AccessedAt.Format("2006-01-02 15:04"))
		fmt.Println(line)
	}
}

func runMemoriesList(cmd *cobra.Command, _ []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	records, err := s.All(cmd.Context(), userFlag)
	if err != nil {
		exitErr("list memories", err)
	}
	printRecords(records)
}

func runMemoriesSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	records, err := s.Search(cmd.Context(), query, userFlag, limit, nil)
	if err != nil {
		exitErr("search memories", err)
	}
	printRecords(records)
}

func runMemoriesDelete(cmd *cobra.Command, args []string) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		exitErr("parse id", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Delete(cmd.Context(), id); err != nil {
		exitErr("delete memory", err)
	}
	fmt.Printf("Deleted memory %d\n", id)
}
