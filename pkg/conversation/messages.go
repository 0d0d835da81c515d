package conversation

import (
	"fmt"
	"strings"

	"fireshot/models"
)

const (
	msgWelcome = "*Welcome!* Your profile has been created.\n\n"
	msgHelp    = "Send me a screenshot of your banking app and I will update the balance in Firefly III.\n\n" +
		"/setup - register an account with an example screenshot\n" +
		"/manage - list, delete or reset registered accounts\n" +
		"/cancel - abort the current operation\n" +
		"/help - show this message"
	msgNotRegistered   = "Please send /start before anything else."
	msgBusy            = "Finish the current operation first, or send /cancel."
	msgNothingToCancel = "There is nothing to cancel."
	msgUnknownCommand  = "I don't know that command. Send /help for the list."
	msgExpiredChoice   = "That choice has expired."

	msgWhichAccount         = "Which account do you want to set up?"
	msgAllRegistered        = "Every account is already set up. Use /manage to remove one first."
	msgSendExample          = "Send me a screenshot of *%s* showing its balance."
	msgExampleNoBalance     = "I could not find a balance in that screenshot. Please send another one."
	msgExampleUnreadable    = "I could not read that image. Please send another screenshot."
	msgExampleChooseBalance = "I found several amounts. Which one is the balance of *%s*?"
	msgRelationship         = "This screenshot looks like the one of other accounts. " +
		"Does *%s* always appear together with one of these?"
	msgSetupConfirm  = "Register account `%d` *%s* with its balance at (%d, %d)?"
	msgSetupComplete = "Account set up. Send a screenshot anytime to update its balance."
	msgSetupCanceled = "Account setup canceled."

	msgScreenshotUnknown  = "I don't recognize this screenshot."
	msgScreenshotConflict = "This screenshot matches several accounts. Which ones are they?"
	msgNoBalanceInShot    = "I could not find any balance in this screenshot."
	msgBalanceUpdated     = "Updated the balance of %d account(s):\n%s"

	msgMenu               = "What do you want to do?"
	msgNoAccounts         = "You have no registered accounts. Use /setup to add one."
	msgChooseDelete       = "Which account do you want to delete?"
	msgChooseGroupDelete  = "Which group of accounts do you want to delete?"
	msgAccountDeleted     = "Deleted account `%d` %s."
	msgGroupDeleted       = "Deleted %d account(s) of group %s."
	msgAccountsReset      = "All registered accounts have been removed."
	msgOperationCanceled  = "Operation canceled."
	msgFireflyUnreachable = "I cannot connect to Firefly III, reason: %s"
	msgProcessingFailed   = "Something went wrong while processing your request."
	msgOperationTimedOut  = "The operation timed out."
	labelNone             = "None of these"
	labelConfirm          = "Confirm"
	labelCancel           = "Cancel"
	labelUngrouped        = "ungrouped"
	labelMenuReset        = "Reset"
	labelMenuDelete       = "Delete Account"
	labelMenuDeleteGroup  = "Delete Relationship"
	labelMenuList         = "List"
	labelMenuRaw          = "Raw"
	directionUpMarker     = "📈"
	directionDownMarker   = "📉"
	directionSteadyMarker = "⚖"
	unchangedLabel        = "unchanged"
)

func text(format string, args ...any) Reply {
	return Reply{Text: fmt.Sprintf(format, args...)}
}

func markdown(format string, args ...any) Reply {
	return Reply{Text: fmt.Sprintf(format, args...), Markdown: true}
}

func groupLabel(rel *int) string {
	if rel == nil {
		return labelUngrouped
	}
	return fmt.Sprint(*rel)
}

// listAccounts renders one line per relationship group.
func listAccounts(groups [][]models.AccountDescriptor) string {
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		parts := make([]string, len(g))
		for i, a := range g {
			parts[i] = fmt.Sprintf("`%d`:%s", a.ID, a.Name)
		}
		lines = append(lines, fmt.Sprintf("`Group %s`: %s", groupLabel(g[0].Relationship), strings.Join(parts, ", ")))
	}
	return strings.Join(lines, "\n")
}
