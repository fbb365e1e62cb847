/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/AbuAli85/business-services-hub-sub014/internal/container"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// recomputeCmd 重算缓存进度，结果经 outbox 和 backplane 通知订阅方
var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute cached milestone and booking progress",
	Long: `Recompute the cached progress of every milestone of a booking and of the
booking itself from the current task rows. Use --booking for a single booking
or --all for every booking.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bookingID, _ := cmd.Flags().GetString("booking")
		all, _ := cmd.Flags().GetBool("all")
		if (bookingID == "") == !all {
			return errors.New("exactly one of --booking or --all is required")
		}

		ctx, cancel := exitOnSignal()
		defer cancel()

		ctr, err := container.NewContainer(ctx, appConfig, appLogger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		ids := []string{bookingID}
		if all {
			if ids, err = repository.NewBookingRepository(ctr.DB()).ListIDs(ctx); err != nil {
				return fmt.Errorf("failed to list bookings: %w", err)
			}
		}

		failed := 0
		for _, id := range ids {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out, err := ctr.Recalculator().RecomputeBooking(ctx, id)
			if err != nil {
				failed++
				appLogger.WithError(err).WithField("booking_id", id).Error("recompute failed")
				continue
			}
			appLogger.WithFields(logrus.Fields{
				"booking_id": id,
				"progress":   out.Booking.ProjectProgress,
				"events":     len(out.Events),
			}).Info("booking recomputed")
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d bookings failed to recompute", failed, len(ids))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recomputeCmd)

	recomputeCmd.Flags().String("booking", "", "Booking ID to recompute")
	recomputeCmd.Flags().Bool("all", false, "Recompute every booking")
}
