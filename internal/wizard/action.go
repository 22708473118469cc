// Package wizard implements the setup and purchase Frame flows. Each click is
// handled from scratch: the button value is the only continuation state.
package wizard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/members-only/backend/internal/frame"
	"github.com/members-only/backend/internal/models"
)

var ErrUnknownAction = errors.New("unknown wizard action")

type Step string

const (
	StepInitial  Step = ""
	StepDone     Step = "done"
	StepAdd      Step = "add"
	StepNetwork  Step = "net"
	StepContract Step = "contract"
	StepConfirm  Step = "confirm"
	StepPersist  Step = "persist"
	StepRemove   Step = "remove"
	StepRules    Step = "rules"
	StepDelete   Step = "delete"

	StepComplete   Step = "complete"
	StepVerify     Step = "verify"
	StepTxCallback Step = frame.TxCallbackValue
)

// Action is a parsed button value. Which fields are set depends on Step.
type Action struct {
	Step    Step
	Network string
	Address string
	Page    int
}

const sep = "-"

// ParseAction decodes a button value such as "contract-base-2" or
// "confirm-optimism-0xabc…".
func ParseAction(value string) (Action, error) {
	parts := strings.Split(value, sep)
	step := Step(parts[0])
	args := parts[1:]

	bad := func() (Action, error) {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, value)
	}

	switch step {
	case StepInitial, StepDone, StepAdd, StepRemove, StepComplete, StepTxCallback:
		if len(args) != 0 {
			return bad()
		}
		return Action{Step: step}, nil

	case StepVerify, StepRules:
		a := Action{Step: step}
		if step == StepVerify && len(args) == 0 {
			return a, nil
		}
		if len(args) != 1 {
			return bad()
		}
		page, err := parsePage(args[0])
		if err != nil {
			return bad()
		}
		a.Page = page
		return a, nil

	case StepNetwork:
		if len(args) != 1 || !models.IsValidNetwork(args[0]) {
			return bad()
		}
		return Action{Step: step, Network: args[0]}, nil

	case StepContract:
		if len(args) != 2 || !models.IsValidNetwork(args[0]) {
			return bad()
		}
		page, err := parsePage(args[1])
		if err != nil {
			return bad()
		}
		return Action{Step: step, Network: args[0], Page: page}, nil

	case StepConfirm, StepPersist, StepDelete:
		if len(args) != 2 || !models.IsValidNetwork(args[0]) || !strings.HasPrefix(strings.ToLower(args[1]), "0x") {
			return bad()
		}
		return Action{Step: step, Network: args[0], Address: models.NormalizeAddress(args[1])}, nil
	}
	return bad()
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad page %q", s)
	}
	return n, nil
}

// String encodes the action back into a button value.
func (a Action) String() string {
	switch a.Step {
	case StepVerify:
		if a.Page == 0 {
			return string(a.Step)
		}
		return string(a.Step) + sep + strconv.Itoa(a.Page)
	case StepRules:
		return string(a.Step) + sep + strconv.Itoa(a.Page)
	case StepNetwork:
		return string(a.Step) + sep + a.Network
	case StepContract:
		return strings.Join([]string{string(a.Step), a.Network, strconv.Itoa(a.Page)}, sep)
	case StepConfirm, StepPersist, StepDelete:
		return strings.Join([]string{string(a.Step), a.Network, a.Address}, sep)
	}
	return string(a.Step)
}

func networkAction(network string) string {
	return Action{Step: StepNetwork, Network: network}.String()
}

func contractPage(network string, page int) string {
	return Action{Step: StepContract, Network: network, Page: page}.String()
}

func confirmAction(network, address string) string {
	return Action{Step: StepConfirm, Network: network, Address: address}.String()
}

func persistAction(network, address string) string {
	return Action{Step: StepPersist, Network: network, Address: address}.String()
}

func rulesPage(page int) string {
	return Action{Step: StepRules, Page: page}.String()
}

func deleteAction(network, address string) string {
	return Action{Step: StepDelete, Network: network, Address: address}.String()
}

func verifyPage(page int) string {
	return Action{Step: StepVerify, Page: page}.String()
}
