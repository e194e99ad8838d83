package casino

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"agentcasino/internal/wei"
)

// Handler adapts agent-to-engine messages to engine calls. All monetary
// quantities cross this boundary as decimal ether strings; everything
// behind it is integer wei. The transport envelope (HTTP, A2A, whatever)
// is someone else's concern.
type Handler struct {
	eng *Engine
}

func NewHandler(eng *Engine) *Handler {
	return &Handler{eng: eng}
}

// Handle dispatches one message. Recognized types: open_channel,
// close_channel, channel_status and "<game>_<action>".
func (h *Handler) Handle(msgType string, params map[string]any) (map[string]any, error) {
	agentHex, _ := params["agent"].(string)
	if agentHex == "" {
		return nil, fmt.Errorf("missing agent")
	}
	if !common.IsHexAddress(agentHex) {
		return nil, fmt.Errorf("bad agent address %q", agentHex)
	}
	agent := common.HexToAddress(agentHex)

	switch msgType {
	case "open_channel":
		return h.openChannel(agent, params)
	case "close_channel":
		return h.closeChannel(agent)
	case "channel_status":
		return h.channelStatus(agent)
	default:
		return h.gameAction(msgType, agent, params)
	}
}

func (h *Handler) openChannel(agent common.Address, params map[string]any) (map[string]any, error) {
	agentDeposit, err := wei.ToWei(params["agentDeposit"])
	if err != nil {
		return nil, fmt.Errorf("agentDeposit: %w", err)
	}
	casinoDeposit, err := wei.ToWei(params["casinoDeposit"])
	if err != nil {
		return nil, fmt.Errorf("casinoDeposit: %w", err)
	}
	snap, err := h.eng.OpenChannel(agent, agentDeposit, casinoDeposit)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":        snap.Status,
		"agentBalance":  wei.ToDecimal(snap.AgentBalance),
		"casinoBalance": wei.ToDecimal(snap.CasinoBalance),
	}, nil
}

func (h *Handler) closeChannel(agent common.Address) (map[string]any, error) {
	res, err := h.eng.CloseChannel(agent)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"agentBalance":  wei.ToDecimal(res.AgentBalance),
		"casinoBalance": wei.ToDecimal(res.CasinoBalance),
		"nonce":         res.Nonce,
		"signature":     hexutil.Encode(res.Signature),
		"totalGames":    res.TotalGames,
	}, nil
}

func (h *Handler) channelStatus(agent common.Address) (map[string]any, error) {
	st, err := h.eng.Status(agent)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":        st.Status,
		"agentBalance":  wei.ToDecimal(st.AgentBalance),
		"casinoBalance": wei.ToDecimal(st.CasinoBalance),
		"nonce":         st.Nonce,
		"gamesPlayed":   st.GamesPlayed,
		"invariantOk":   st.InvariantOK,
	}, nil
}

func (h *Handler) gameAction(routeName string, agent common.Address, params map[string]any) (map[string]any, error) {
	// Bets arrive as decimal ether; the games want wei.
	if raw, ok := params["bet"]; ok {
		bet, err := wei.ToWei(raw)
		if err != nil {
			return nil, fmt.Errorf("bet: %w", err)
		}
		params = cloneParams(params)
		params["bet"] = bet
	}

	res, err := h.eng.HandleAction(routeName, agent, params)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	for k, v := range res.Data {
		out[k] = v
	}
	// Wei strings in game data become display ether at the boundary.
	for _, k := range []string{"payout", "bet", "cost", "claimed", "remaining", "ticketPrice", "totalPool"} {
		if s, ok := out[k].(string); ok {
			if parsed, ok := parseWeiString(s); ok {
				out[k] = wei.ToDecimal(parsed)
			}
		}
	}
	if res.State != nil {
		out["agentBalance"] = wei.ToDecimal(res.State.AgentBalance)
		out["casinoBalance"] = wei.ToDecimal(res.State.CasinoBalance)
		out["nonce"] = res.State.Nonce
		out["signature"] = hexutil.Encode(res.State.Signature)
	}
	return out, nil
}

func parseWeiString(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
