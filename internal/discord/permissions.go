package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker validates that a Discord user holds the control role
// before they can move or stop the visualiser.
type PermissionChecker struct {
	roleID string
}

// NewPermissionChecker creates a PermissionChecker for the given role ID.
func NewPermissionChecker(roleID string) *PermissionChecker {
	return &PermissionChecker{roleID: roleID}
}

// CanControl checks whether the interaction author has the control role.
// If the role ID is empty, everyone may control the visualiser.
// Returns false if the interaction has no Member (e.g., DM channel interactions).
func (p *PermissionChecker) CanControl(i *discordgo.InteractionCreate) bool {
	if p.roleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.roleID)
}

// InteractionUserID extracts the user ID from an interaction, handling
// both guild (Member) and DM (User) contexts.
func InteractionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
