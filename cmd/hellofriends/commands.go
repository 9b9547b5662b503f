package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hellofriends/hellofriends/internal/config"
	"github.com/hellofriends/hellofriends/internal/kb"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about migrant worker rights",
	Long: `Ask a question about migrant worker rights.

Examples:
  hellofriends ask "I have not been paid for two months"
  hellofriends ask --session 3f2a... "what can I do next?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/chat", map[string]string{
			"query":      query,
			"session_id": sessionID,
		})
		if err != nil {
			return err
		}

		var result struct {
			SessionID string   `json:"session_id"`
			Answer    string   `json:"answer"`
			Method    string   `json:"method"`
			Sources   []string `json:"sources"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		fmt.Println()
		printStatus("Method", "%s", result.Method)
		if len(result.Sources) > 0 {
			printStatus("Sources", "%s", strings.Join(result.Sources, ", "))
		}
		printStatus("Session", "%s", result.SessionID)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "continue an existing session")
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage uploaded guidance documents",
}

var documentsProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process and index documents from the upload directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentIndexing("/documents/process")
	},
}

var documentsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the document index from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDocumentIndexing("/documents/rebuild")
	},
}

func runDocumentIndexing(path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	printStep("Processing documents...")
	resp, err := client.post(path, nil)
	if err != nil {
		return err
	}

	var result struct {
		Files []struct {
			Path   string `json:"path"`
			Chunks int    `json:"chunks"`
			Error  string `json:"error"`
		} `json:"files"`
		Indexed int `json:"indexed"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	for _, f := range result.Files {
		name := filepath.Base(f.Path)
		if f.Error != "" {
			printError("%s: %s", name, f.Error)
			continue
		}
		printSuccess("%s (%d chunks)", name, f.Chunks)
	}
	printStatus("Indexed", "%d chunks", result.Indexed)
	return nil
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents in the upload directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/documents")
		if err != nil {
			return err
		}

		var docs []struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents uploaded.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("  %s (%d bytes)\n", colorize(colorBold, d.Name), d.Size)
		}
		return nil
	},
}

var documentsInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show document index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/index/info")
		if err != nil {
			return err
		}

		var info struct {
			Chunks  int    `json:"chunks"`
			Backend string `json:"backend"`
		}
		if err := decodeJSON(resp, &info); err != nil {
			return err
		}

		printStatus("Chunks", "%d", info.Chunks)
		printStatus("Backend", "%s", info.Backend)
		return nil
	},
}

func init() {
	documentsCmd.AddCommand(documentsProcessCmd)
	documentsCmd.AddCommand(documentsRebuildCmd)
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsInfoCmd)
}

// --- kb ---

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the rights knowledge base",
}

var kbReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the knowledge base from its YAML source",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/kb/reload", nil)
		if err != nil {
			return err
		}

		var result struct {
			Entries int `json:"entries"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Knowledge base reloaded (%d entries)", result.Entries)
		return nil
	},
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge base entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		category, _ := cmd.Flags().GetString("category")

		store := kb.NewStore(cfg.KB.Path)
		var entries []kb.Entry
		if category == "" {
			entries = store.All()
		} else {
			entries = store.ByCategory(category)
		}

		if len(entries) == 0 {
			fmt.Println("No entries found.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("  %s  %s  [%s]\n",
				colorize(colorCyan, e.ID),
				colorize(colorBold, e.Title),
				strings.Join(e.Categories, ", "),
			)
		}
		return nil
	},
}

func init() {
	kbListCmd.Flags().String("category", "", "filter by category")
	kbCmd.AddCommand(kbReloadCmd)
	kbCmd.AddCommand(kbListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a single configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		value, err := config.GetKey(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
