/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/AbuAli85/business-services-hub-sub014/internal/database"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// templateCmd 里程碑模板管理
var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage milestone templates",
}

// templateImportCmd 从 YAML 文件导入模板
var templateImportCmd = &cobra.Command{
	Use:   "import <file.yaml>...",
	Short: "Import milestone templates from YAML files",
	Long: `Import milestone templates from YAML files. Each file holds one template:

  name: website-launch
  description: Standard website delivery
  milestones:
    - title: Design
      weight: 2
      offset_days: 7
      tasks:
        - title: Wireframes
          estimated_hours: 6
    - title: Build
      weight: 3

A template with the same name is rejected unless --replace is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		replace, _ := cmd.Flags().GetBool("replace")

		ctx, cancel := exitOnSignal()
		defer cancel()

		db, err := database.Connect(appConfig.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer database.Close(db)

		// 导入不生成里程碑，不需要重算器
		mgr := integration.NewTemplateManager(db, nil)

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			doc, err := integration.ParseTemplateYAML(data)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			tpl, err := mgr.Create(ctx, doc, cliCaller.UserID, replace)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			appLogger.WithFields(logrus.Fields{
				"file":        path,
				"template_id": tpl.ID,
				"name":        tpl.Name,
				"milestones":  len(doc.Milestones),
			}).Info("template imported")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateImportCmd)

	templateImportCmd.Flags().Bool("replace", false, "Replace an existing template with the same name")
}
