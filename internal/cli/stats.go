package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record store statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	convActive, convArchived, err := db.CountConversations()
	if err != nil {
		return fmt.Errorf("count conversations: %w", err)
	}
	itemsActive, itemsSuperseded, err := db.CountKnowledgeItems()
	if err != nil {
		return fmt.Errorf("count knowledge: %w", err)
	}
	clusters, err := db.CountClusters()
	if err != nil {
		return fmt.Errorf("count clusters: %w", err)
	}
	patterns, err := db.CountPatterns()
	if err != nil {
		return fmt.Errorf("count patterns: %w", err)
	}
	audits, err := db.CountMergeAudits()
	if err != nil {
		return fmt.Errorf("count audits: %w", err)
	}

	fmt.Println("## Recall")
	fmt.Printf("  conversations:  %d active, %d archived, %d clusters\n", convActive, convArchived, clusters)
	fmt.Printf("  knowledge:      %d active, %d superseded\n", itemsActive, itemsSuperseded)
	fmt.Printf("  patterns:       %d\n", patterns)
	fmt.Printf("  merge audits:   %d\n", audits)
	return nil
}
