package bot

import "strings"

// Kind identifies one of the channel commands.
type Kind int

const (
	KindNone Kind = iota
	KindGames
	KindLoad
	KindVote
	KindVoteStatus
	KindStopGame
	KindReplay
	KindStatus
	KindHelp
)

// Command is one parsed channel message. Arg carries the story name for
// KindLoad and the proposed game command for KindVote.
type Command struct {
	Kind Kind
	Arg  string
}

// Parse maps a raw channel message onto the command surface. Command words
// are case-insensitive; anything that is not a command is KindNone (it still
// counts toward activity).
func Parse(content string) Command {
	msg := strings.TrimSpace(content)
	lower := strings.ToLower(msg)

	switch {
	case lower == "!games":
		return Command{Kind: KindGames}
	case strings.HasPrefix(lower, "!load "):
		return Command{Kind: KindLoad, Arg: strings.TrimSpace(msg[len("!load "):])}
	case lower == "!vote":
		return Command{Kind: KindVoteStatus}
	case strings.HasPrefix(lower, "!vote "):
		return Command{Kind: KindVote, Arg: strings.TrimSpace(msg[len("!vote "):])}
	case lower == "!stopgame":
		return Command{Kind: KindStopGame}
	case lower == "!replay":
		return Command{Kind: KindReplay}
	case lower == "!status":
		return Command{Kind: KindStatus}
	case lower == "!help":
		return Command{Kind: KindHelp}
	}
	return Command{Kind: KindNone}
}
