package bot

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// discordPlatform adapts a gateway session to the detector's view of a
// community: presence checks, kicks and log channel messages.
type discordPlatform struct {
	session *discordgo.Session
}

func (p *discordPlatform) HasGuild(guildID string) bool {
	guild, err := p.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return false
	}
	return !guild.Unavailable
}

// HasMember reports false only when the member is known to be gone. Any other
// lookup failure lets the kick be attempted and recorded.
func (p *discordPlatform) HasMember(ctx context.Context, guildID, userID string) bool {
	if member, err := p.session.State.Member(guildID, userID); err == nil && member != nil {
		return true
	}
	_, err := p.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	return !isNotFound(err)
}

func (p *discordPlatform) Kick(ctx context.Context, guildID, userID, reason string) error {
	return p.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
}

func (p *discordPlatform) Send(ctx context.Context, channelID, content string) error {
	_, err := p.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == http.StatusNotFound
}
