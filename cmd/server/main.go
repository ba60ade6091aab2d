// Package main 是应用程序的入口点。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "aiko",
		Short: "Discord 人格聊天机器人",
		Long: `aiko 把 Discord 子区与私信中的消息转发给 OpenAI 兼容的大模型，
为每个会话保留有界历史与人格设定，并可在语音频道中朗读回复。`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")

	rootCmd.AddCommand(
		serveCmd(),
		historyCmd(),
		personasCmd(),
		tokenCmd(),
		eventsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
