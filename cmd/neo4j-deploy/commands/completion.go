package commands

import (
	"github.com/spf13/cobra"
)

// Completion returns the completion command for shell autocompletion.
func Completion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for neo4j-deploy.

Load completions into the current shell:

  bash:        source <(neo4j-deploy completion bash)
  zsh:         source <(neo4j-deploy completion zsh)
  fish:        neo4j-deploy completion fish | source
  powershell:  neo4j-deploy completion powershell | Out-String | Invoke-Expression

To load them in every session, write the script to your shell's completion
directory, for example:

  neo4j-deploy completion bash > /etc/bash_completion.d/neo4j-deploy
  neo4j-deploy completion zsh > "${fpath[1]}/_neo4j-deploy"
  neo4j-deploy completion fish > ~/.config/fish/completions/neo4j-deploy.fish
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
