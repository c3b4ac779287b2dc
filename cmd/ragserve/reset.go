package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/config"
	"github.com/ragstack/ragserve/internal/scrape"
	"github.com/ragstack/ragserve/internal/session"
)

func resetCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the durable session state and scrape cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			sess := session.New(durableStore(cfg), nil)
			if err := sess.Reset(context.Background()); err != nil {
				return err
			}
			if err := scrape.NewCache(cfg.Scrape.CachePath).Clear(); err != nil {
				return err
			}
			fmt.Println("session state and scrape cache cleared")
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default config.yaml in . or ./config)")
	return cmd
}
