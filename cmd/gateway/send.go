package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/MOHCentral/opm-stats-gateway/pkg/producer"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a batch of generated test events to a gateway",
	RunE:  runSend,
}

var (
	sendGatewayURL string
	sendToken      string
	sendCount      int
	sendLegacy     bool
	sendMatchID    string
)

func init() {
	sendCmd.Flags().StringVar(&sendGatewayURL, "gateway", "http://localhost:8088", "gateway base URL")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "server token")
	sendCmd.Flags().IntVar(&sendCount, "count", 10, "number of events to send")
	sendCmd.Flags().BoolVar(&sendLegacy, "legacy", false, "use the legacy line encoding")
	sendCmd.Flags().StringVar(&sendMatchID, "match", "", "match id (random if empty)")
	sendCmd.MarkFlagRequired("token")
	rootCmd.AddCommand(sendCmd)
}

var sampleEventTypes = []string{
	"match_start", "player_spawn", "player_jump", "player_kill",
	"weapon_fired", "objective_captured", "round_end",
}

func runSend(cmd *cobra.Command, args []string) error {
	matchID := sendMatchID
	if matchID == "" {
		matchID = gofakeit.UUID()
	}

	queue := producer.NewQueue()
	for i := 0; i < sendCount; i++ {
		event := producer.NewEvent(gofakeit.RandomString(sampleEventTypes), matchID).
			SetTimestamp(time.Now()).
			Set("player", gofakeit.Username()).
			Set("map", gofakeit.Word()).
			Set("pos_x", gofakeit.Float64Range(-4096, 4096)).
			Set("pos_y", gofakeit.Float64Range(-4096, 4096)).
			Set("alive", gofakeit.Bool())
		if err := queue.Add(event); err != nil {
			return fmt.Errorf("queue event: %w", err)
		}
	}

	encoding := producer.EncodingJSON
	if sendLegacy {
		encoding = producer.EncodingLegacy
	}

	client := producer.NewClient(sendGatewayURL, sendToken)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := client.Send(ctx, queue, encoding)
	if err != nil {
		return err
	}

	fmt.Printf("total=%d processed=%d errors=%d\n", result.Total, result.Processed, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Printf("  [%d] %s: %s\n", e.Index, e.Reason, e.Detail)
	}
	return nil
}
