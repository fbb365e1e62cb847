/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/database"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	bubbleprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	reportTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39"))
	reportLabelStyle = lipgloss.NewStyle().
				Width(28)
	reportDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	reportOverdueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)
)

// reportCmd 在终端打印预订的里程碑进度条
var reportCmd = &cobra.Command{
	Use:   "report <booking-id>",
	Short: "Print the milestone progress of a booking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := exitOnSignal()
		defer cancel()

		db, err := database.Connect(appConfig.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer database.Close(db)

		mode, err := progress.ParseMode(appConfig.Progress.Mode)
		if err != nil {
			return err
		}
		recalc := integration.NewRecalculator(db, mode, appConfig.Progress.MaxConflictRetries, nil, appLogger)
		audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))
		svc := service.NewProgressService(db, auth.NewRelationAuthorizer(), recalc, audit, appLogger)

		view, err := svc.GetProgress(ctx, cliCaller, args[0])
		if err != nil {
			return err
		}
		st, err := svc.GetDisplayStatus(ctx, cliCaller, args[0])
		if err != nil {
			return err
		}

		width, _ := cmd.Flags().GetInt("width")
		renderReport(cmd.OutOrStdout(), view, st, width)
		return nil
	},
}

func renderReport(w io.Writer, view *service.BookingProgress, st *service.BookingStatus, width int) {
	bar := bubbleprogress.New(bubbleprogress.WithDefaultGradient(), bubbleprogress.WithWidth(width))

	var b strings.Builder
	b.WriteString(reportTitleStyle.Render(fmt.Sprintf("Booking %s  [%s]", view.BookingID, st.DisplayStatus.String())))
	b.WriteString("\n")
	b.WriteString(reportLabelStyle.Render("Overall"))
	b.WriteString(bar.ViewAs(float64(view.OverallProgress) / 100))
	b.WriteString("\n")
	b.WriteString(reportDimStyle.Render(fmt.Sprintf("%d/%d tasks, %d/%d milestones completed, updated %s",
		view.CompletedTasks, view.TotalTasks, view.CompletedMilestones, view.TotalMilestones,
		view.UpdatedAt.Format(time.RFC3339))))
	b.WriteString("\n\n")

	for _, m := range view.Milestones {
		label := fmt.Sprintf("%s (w=%g)", m.Title, m.Weight)
		b.WriteString(reportLabelStyle.Render(truncate(label, 27)))
		b.WriteString(bar.ViewAs(float64(m.ProgressPercentage) / 100))
		if m.Overdue {
			b.WriteString(" ")
			b.WriteString(reportOverdueStyle.Render("overdue"))
		}
		b.WriteString("\n")
		for _, t := range m.Tasks {
			line := fmt.Sprintf("  %-10s %s", t.Status, t.Title)
			if t.Overdue {
				line += " " + reportOverdueStyle.Render("!")
			}
			b.WriteString(reportDimStyle.Render(line))
			b.WriteString("\n")
		}
	}
	if view.OverdueTasks > 0 {
		b.WriteString("\n")
		b.WriteString(reportOverdueStyle.Render(fmt.Sprintf("%d overdue task(s)", view.OverdueTasks)))
		b.WriteString("\n")
	}

	fmt.Fprint(w, b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Int("width", 40, "Progress bar width")
}
