// toolgate asks before an AI agent's tool calls run.
package main

import "github.com/ppiankov/toolgate/internal/cli"

func main() {
	cli.Execute()
}
