package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cacheoracle/cacheoracle/client"
	"github.com/cacheoracle/cacheoracle/health"
	"github.com/cacheoracle/cacheoracle/model"
	"github.com/cacheoracle/cacheoracle/realtime"
)

var (
	cfgFile string
	apiCli  *client.Client
)

func initClient() {
	viper.SetDefault("host", "127.0.0.1")
	viper.SetDefault("port", 7777)
	viper.SetEnvPrefix("cacheoracle")
	viper.AutomaticEnv()
	if cfgFile == "" {
		viper.SetConfigName(".cacheoracle")
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println("Failed to get home directory")
			os.Exit(1)
		}
		viper.AddConfigPath(home)
	} else {
		viper.SetConfigFile(cfgFile)
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			fmt.Printf("Failed to load config: %s\n", err)
			os.Exit(1)
		}
	}
	apiCli = client.NewClient(viper.GetString("host"), viper.GetInt("port"))
	apiCli.ConfigRetry(viper.GetInt("retry"), 500)
}

func printSnapshot(s *model.Snapshot) {
	assessment := health.Assess(s)
	fmt.Printf("[%s] redis %s, up %s\n", s.Time().Format(time.RFC3339), s.RedisVersion,
		time.Duration(s.UptimeInSeconds)*time.Second)
	fmt.Printf("* Score: %d (%s)\n", assessment.Score, assessment.Status)
	fmt.Printf("* Hit ratio: %.2f%%\n", s.OverallHitRatio)
	fmt.Printf("* Ops/sec: %d\n", s.InstantaneousOpsPerSec)
	fmt.Printf("* Avg response: %.2fms\n", s.AvgResponseTime)
	fmt.Printf("* Memory: %s (peak %s), fragmentation %s\n", s.UsedMemoryHuman, s.UsedMemoryPeakHuman,
		assessment.FragmentationStatus)
	fmt.Printf("* CPU: %s, clients: %s\n", assessment.CPUStatus, assessment.ClientUtilizationStatus)
	if s.Persistence.AofBaseSize > 0 {
		fmt.Printf("* AOF growth: %.1f%%\n", assessment.AOFGrowth)
	}
	for _, in := range assessment.Insights {
		fmt.Printf("  - [%s] %s: %s\n", in.Level, in.Title, in.Message)
	}
}

func main() {
	cobra.OnInitialize(initClient)

	metricsCmd := &cobra.Command{
		Use:     "metrics [connection string]",
		Short:   "collect a snapshot of the redis server",
		Example: `metrics "redis-cli -h 10.0.0.5 -p 6379" --id cache-1`,
		Aliases: []string{"get", "snap"},
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			connID, _ := cmd.Flags().GetString("id")
			result, err := apiCli.GetMetrics(context.Background(), connID, args[0])
			if err != nil {
				fmt.Printf("Failed: %s\n", err)
				return
			}
			printSnapshot(result.Metrics)
			if result.Reboot != nil {
				fmt.Printf("Reboot detected, previous uptime %ds\n", result.Reboot.PreviousUptimeSeconds)
			}
			if result.Warning != "" {
				fmt.Printf("Warning: %s\n", result.Warning)
			}
		},
	}
	metricsCmd.Flags().StringP("id", "i", "", "connection id, the snapshot is persisted when set")

	uptimeCmd := &cobra.Command{
		Use:     "uptime [connection id]",
		Short:   "list the uptime history and reboots of a connection",
		Example: "uptime cache-1",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			limit, _ := cmd.Flags().GetInt("limit")
			records, err := apiCli.UptimeHistory(context.Background(), args[0], limit)
			if err != nil {
				fmt.Printf("Failed: %s\n", err)
				return
			}
			reboots, err := apiCli.Reboots(context.Background(), args[0], limit)
			if err != nil {
				fmt.Printf("Failed: %s\n", err)
				return
			}
			for _, record := range records {
				mark := ""
				if record.ServerRebooted {
					mark = " (rebooted)"
				}
				fmt.Printf("%s uptime %ds%s\n", record.RecordedAt.Format(time.RFC3339), record.UptimeSeconds, mark)
			}
			fmt.Printf("Reboots: %d\n", len(reboots))
			for _, reboot := range reboots {
				fmt.Printf("* around %s, detected %s\n", reboot.RebootTime.Format(time.RFC3339), reboot.DetectedAt.Format(time.RFC3339))
			}
		},
	}
	uptimeCmd.Flags().IntP("limit", "l", 20, "max number of records")

	deleteCmd := &cobra.Command{
		Use:     "delete [connection id]",
		Short:   "drop the stored history of a connection",
		Example: "delete cache-1",
		Aliases: []string{"del"},
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiCli.DeleteConnection(context.Background(), args[0]); err != nil {
				fmt.Printf("Failed: %s\n", err)
				return
			}
			fmt.Println("Deleted")
		},
	}

	watchCmd := &cobra.Command{
		Use:     "watch [connection string]",
		Short:   "poll the redis server and print every new snapshot",
		Example: `watch "redis-cli -h 10.0.0.5" --interval 5s`,
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			connID, _ := cmd.Flags().GetString("id")
			interval, _ := cmd.Flags().GetDuration("interval")
			history := realtime.NewHistory(realtime.DefaultHistorySize)
			poller := realtime.NewPoller(interval, func(ctx context.Context) (*model.Snapshot, error) {
				result, err := apiCli.GetMetrics(ctx, connID, args[0])
				if err != nil {
					return nil, err
				}
				return result.Metrics, nil
			})
			poller.OnSnapshot = func(s *model.Snapshot) {
				if history.Push(s) {
					printSnapshot(s)
				}
			}
			poller.OnError = func(err error) {
				fmt.Printf("Failed: %s\n", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			poller.Run(ctx)
			fmt.Printf("Collected %d snapshots\n", history.Len())
		},
	}
	watchCmd.Flags().StringP("id", "i", "", "connection id, snapshots are persisted when set")
	watchCmd.Flags().DurationP("interval", "n", realtime.DefaultPollInterval, "poll interval")

	rootCmd := &cobra.Command{Use: "cacheoracle"}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().Int("retry", 0, "retries on transport errors and 5xx")
	viper.BindPFlag("retry", rootCmd.PersistentFlags().Lookup("retry"))

	rootCmd.AddCommand(metricsCmd, uptimeCmd, deleteCmd, watchCmd)
	rootCmd.Execute()
}
