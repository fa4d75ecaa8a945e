package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"planner/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the sync coordinator until interrupted",
	Long: `Run background synchronization: one pull to catch up with the
remote, then a repeating push of queued local mutations. Does nothing
until you sign in with 'planner login'.`,
	Run: func(cmd *cobra.Command, args []string) {
		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		if sess.cfg.Remote.BaseURL == "" {
			fatalf("remote.base_url is not configured")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := syncer.NewClient(sess.cfg.Remote.BaseURL, nil)
		coord := syncer.New(sess.store, sess.queue, client, syncer.FileToken(sess.tokenPath()), syncer.Config{
			PushInterval: sess.cfg.Sync.Interval,
			Logger:       sess.log,
		})

		fmt.Printf("Syncing with %s every %s (Ctrl-C to stop)\n",
			sess.cfg.Remote.BaseURL, sess.cfg.Sync.Interval)
		coord.Start(ctx)
		<-ctx.Done()
		coord.Stop()
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the remote and store the credential",
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			fatalf("--email and --password are required")
		}

		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		if sess.cfg.Remote.BaseURL == "" {
			fatalf("remote.base_url is not configured")
		}

		client := syncer.NewClient(sess.cfg.Remote.BaseURL, nil)
		token, err := client.SignIn(context.Background(), email, password)
		if err != nil {
			fatalf("%v", err)
		}
		if err := os.WriteFile(sess.tokenPath(), []byte(token), 0o600); err != nil {
			fatalf("failed to store credential: %v", err)
		}
		fmt.Println("Signed in.")
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored credential",
	Run: func(cmd *cobra.Command, args []string) {
		sess, err := openSession()
		if err != nil {
			fatalf("%v", err)
		}
		defer sess.close()

		if err := os.Remove(sess.tokenPath()); err != nil && !os.IsNotExist(err) {
			fatalf("failed to clear credential: %v", err)
		}
		fmt.Println("Signed out.")
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")
}
