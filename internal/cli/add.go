package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/softfault/recall/internal/engine"
	"github.com/softfault/recall/internal/store"
	"github.com/spf13/cobra"
)

var (
	addImportance int
	addConfidence float64
	addOutcome    string
	addCategory   string
	addKey        string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add memory records",
}

var addConversationCmd = &cobra.Command{
	Use:   "conversation [topic]",
	Short: "Record a conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAddConversation,
}

var addKnowledgeCmd = &cobra.Command{
	Use:   "knowledge [value]",
	Short: "Record a knowledge item",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAddKnowledge,
}

func init() {
	addCmd.AddCommand(addConversationCmd)
	addCmd.AddCommand(addKnowledgeCmd)

	addConversationCmd.Flags().IntVarP(&addImportance, "importance", "i", 5, "Importance 1-10")
	addConversationCmd.Flags().StringVar(&addOutcome, "outcome", "", "Outcome: success or failure (default unknown)")

	addKnowledgeCmd.Flags().StringVarP(&addCategory, "category", "c", "", "Category (required)")
	addKnowledgeCmd.Flags().StringVarP(&addKey, "key", "k", "", "Key (required)")
	addKnowledgeCmd.Flags().Float64Var(&addConfidence, "confidence", 0.5, "Confidence 0-1")
	addKnowledgeCmd.MarkFlagRequired("category")
	addKnowledgeCmd.MarkFlagRequired("key")
}

func runAddConversation(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	c := &store.Conversation{
		Topic:      strings.Join(args, " "),
		Importance: addImportance,
	}
	switch addOutcome {
	case "":
	case "success":
		v := true
		c.OutcomeSuccess = &v
	case "failure":
		v := false
		c.OutcomeSuccess = &v
	default:
		return fmt.Errorf("outcome must be success or failure, got %q", addOutcome)
	}
	c.PriorityScore = engine.ScoreConversation(c, time.Now())

	if err := db.CreateConversation(c); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	fmt.Printf("conversation %d recorded (priority %.2f)\n", c.ID, c.PriorityScore)
	return nil
}

func runAddKnowledge(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	k := &store.KnowledgeItem{
		Category:   addCategory,
		Key:        addKey,
		Value:      strings.Join(args, " "),
		Confidence: addConfidence,
		Importance: 5,
	}
	k.PriorityScore = engine.ScoreKnowledgeItem(k, time.Now())

	if err := db.CreateKnowledgeItem(k); err != nil {
		return fmt.Errorf("create knowledge item: %w", err)
	}

	fmt.Printf("knowledge %d recorded (%s/%s, priority %.2f)\n", k.ID, k.Category, k.Key, k.PriorityScore)
	return nil
}
