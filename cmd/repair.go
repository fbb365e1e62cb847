/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/container"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// repairCmd 检查数据一致性
var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Report orphaned rows and fix drifted progress caches",
	Long: `Report tasks whose milestone no longer exists and milestones whose booking
no longer exists, then recompute every booking whose cached progress differs
from the value derived from its tasks. Orphans are only reported; they need a
decision about where they belong.

With --sync-relations the client and provider relations of every booking are
written to OpenFGA; --print-model prints the authorization model they follow.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		syncRelations, _ := cmd.Flags().GetBool("sync-relations")
		if printModel, _ := cmd.Flags().GetBool("print-model"); printModel {
			fmt.Fprintln(cmd.OutOrStdout(), auth.GetPermissionModel())
			return nil
		}

		ctx, cancel := exitOnSignal()
		defer cancel()

		ctr, err := container.NewContainer(ctx, appConfig, appLogger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		db := ctr.DB()
		logger := appLogger
		mode, err := progress.ParseMode(appConfig.Progress.Mode)
		if err != nil {
			return err
		}

		// 1. 孤儿行
		orphanTasks, err := repository.NewTaskRepository(db).FindOrphans(ctx)
		if err != nil {
			return fmt.Errorf("failed to find orphan tasks: %w", err)
		}
		for _, t := range orphanTasks {
			logger.WithFields(logrus.Fields{"task_id": t.ID, "milestone_id": t.MilestoneID}).Warn("orphan task")
		}
		orphanMilestones, err := repository.NewMilestoneRepository(db).FindOrphans(ctx)
		if err != nil {
			return fmt.Errorf("failed to find orphan milestones: %w", err)
		}
		for _, m := range orphanMilestones {
			logger.WithFields(logrus.Fields{"milestone_id": m.ID, "booking_id": m.BookingID}).Warn("orphan milestone")
		}

		// 2. 缓存漂移：事务外先算一遍，不一致的再走重算
		bookings := repository.NewBookingRepository(db)
		ids, err := bookings.ListIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list bookings: %w", err)
		}

		drifted := 0
		for _, id := range ids {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cached, err := bookings.FindByID(ctx, id)
			if err != nil {
				return err
			}
			view, err := ctr.ProgressService().GetProgress(ctx, cliCaller, id)
			if err != nil {
				return fmt.Errorf("failed to compute progress of booking %s: %w", id, err)
			}
			if !progressDrifted(cached.ProjectProgress, view, mode) {
				continue
			}

			drifted++
			entry := logger.WithFields(logrus.Fields{
				"booking_id": id,
				"cached":     cached.ProjectProgress,
				"derived":    view.OverallProgress,
			})
			if dryRun {
				entry.Warn("progress drifted")
				continue
			}
			if _, err := ctr.Recalculator().RecomputeBooking(ctx, id); err != nil {
				entry.WithError(err).Error("recompute failed")
				continue
			}
			entry.Info("progress repaired")
		}

		// 3. OpenFGA 关系
		if syncRelations {
			fga := ctr.OpenFGAClient()
			if fga == nil {
				return errors.New("--sync-relations requires openfga.api_url and openfga.store_id")
			}
			for _, id := range ids {
				b, err := bookings.FindByID(ctx, id)
				if err != nil {
					return err
				}
				if dryRun {
					continue
				}
				if err := fga.WriteBookingParticipants(ctx, b); err != nil {
					logger.WithError(err).WithField("booking_id", id).Error("relation sync failed")
				}
			}
		}

		logger.WithFields(logrus.Fields{
			"orphan_tasks":      len(orphanTasks),
			"orphan_milestones": len(orphanMilestones),
			"drifted_bookings":  drifted,
			"bookings":          len(ids),
		}).Info("repair finished")
		return nil
	},
}

// cliCaller 命令行以管理员身份读取
var cliCaller = auth.Caller{UserID: "cli", Roles: []string{auth.RoleAdmin}}

// progressDrifted 用当前任务重新计算，与缓存值比较
func progressDrifted(cached int, view *service.BookingProgress, mode progress.Mode) bool {
	weighted := make([]progress.WeightedProgress, 0, len(view.Milestones))
	for _, m := range view.Milestones {
		tasks := make([]progress.TaskSnapshot, len(m.Tasks))
		for i, t := range m.Tasks {
			tasks[i] = progress.TaskSnapshot{Status: t.Status, Progress: t.ProgressPercentage}
		}
		derived := progress.ComputeMilestoneProgress(tasks, mode)
		if derived != m.ProgressPercentage {
			return true
		}
		weighted = append(weighted, progress.WeightedProgress{Percent: derived, Weight: m.Weight})
	}
	return progress.ComputeBookingProgress(weighted) != cached
}

func init() {
	rootCmd.AddCommand(repairCmd)

	repairCmd.Flags().Bool("dry-run", false, "Only report, do not write")
	repairCmd.Flags().Bool("sync-relations", false, "Write booking participants to OpenFGA")
	repairCmd.Flags().Bool("print-model", false, "Print the OpenFGA authorization model the relations are written against")
}
