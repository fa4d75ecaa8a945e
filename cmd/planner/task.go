package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"planner/internal/store"
	"planner/internal/task"
)

var (
	flagPeriod string
	flagDate   string
)

func bucketFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagPeriod, "period", "p", "days", "bucket granularity: days, weeks, months or year")
	cmd.Flags().StringVarP(&flagDate, "date", "d", "", "any day inside the target period (default today)")
}

func parseBucketFlags() (time.Time, task.Period, error) {
	p, err := task.ParsePeriod(flagPeriod)
	if err != nil {
		return time.Time{}, "", err
	}
	day := time.Now()
	if flagDate != "" {
		day, err = time.Parse(task.DateLayout, flagDate)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("invalid date %q (want YYYY-MM-DD)", flagDate)
		}
	}
	return day, p, nil
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a task to a bucket",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := strings.TrimSpace(strings.Join(args, " "))
		if name == "" {
			fatalf("task name must not be empty")
		}
		day, p, err := parseBucketFlags()
		if err != nil {
			fatalf("%v", err)
		}

		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		t, err := sess.store.Create(context.Background(), store.CreateParams{
			Name:   name,
			Period: p,
			Date:   day,
		})
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Added %s (%s %s) as %s\n", t.Name, t.Period, t.Date, t.ID)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in a bucket",
	Long: `List tasks. With --date, shows the bucket covering that day;
with --all, shows every task in the store.`,
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")

		var (
			day time.Time
			p   task.Period
		)
		if !all {
			var err error
			day, p, err = parseBucketFlags()
			if err != nil {
				fatalf("%v", err)
			}
		}

		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		tasks, err := sess.store.List(context.Background(), day, p)
		if err != nil {
			fatalf("%v", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return
		}
		for _, t := range tasks {
			mark := " "
			if t.Complete {
				mark = "x"
			}
			fmt.Printf("[%s] %-12s  %s  (%s %s)\n", mark, t.ID, t.Name, t.Period, t.Date)
		}
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		complete := true
		t, err := sess.store.Update(context.Background(), args[0], task.Fields{Complete: &complete})
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Completed %s\n", t.Name)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		if err := sess.store.Delete(context.Background(), args[0]); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
	},
}

var orderCmd = &cobra.Command{
	Use:   "order <id>...",
	Short: "Reorder a bucket to match the given id sequence",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		day, p, err := parseBucketFlags()
		if err != nil {
			fatalf("%v", err)
		}

		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		if err := sess.store.UpdateOrder(context.Background(), day, p, args); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("Reordered.")
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy the previous bucket's incomplete tasks into this one",
	Run: func(cmd *cobra.Command, args []string) {
		day, p, err := parseBucketFlags()
		if err != nil {
			fatalf("%v", err)
		}

		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		copies, err := sess.store.CopyIncompletes(context.Background(), day, p)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Copied %d task(s).\n", len(copies))
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every task in a bucket",
	Run: func(cmd *cobra.Command, args []string) {
		day, p, err := parseBucketFlags()
		if err != nil {
			fatalf("%v", err)
		}

		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		if err := sess.store.ClearPeriod(context.Background(), day, p); err != nil {
			fatalf("%v", err)
		}
		fmt.Println("Cleared.")
	},
}

func init() {
	for _, cmd := range []*cobra.Command{addCmd, listCmd, orderCmd, copyCmd, clearCmd} {
		bucketFlags(cmd)
	}
	listCmd.Flags().Bool("all", false, "list every task")
}
