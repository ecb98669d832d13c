package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"
)

// flags
var (
	roundFlag = &cli.Uint64Flag{
		Name:     "round",
		Usage:    "the id of the round",
		Required: true,
	}
	entryPriceFlag = &cli.Uint64Flag{
		Name:     "entry-price",
		Usage:    "the price of a single entry",
		Required: true,
	}
	maxEntriesFlag = &cli.Uint64Flag{
		Name:     "max-entries",
		Usage:    "the maximum number of entries that can be sold",
		Required: true,
	}
	commissionRateFlag = &cli.Uint64Flag{
		Name:  "commission-rate",
		Usage: "the percentage of the pool kept by the operator",
	}
	expirationFlag = &cli.Int64Flag{
		Name:  "expiration",
		Usage: "the unix timestamp after which no entry can be bought",
	}
	durationFlag = &cli.DurationFlag{
		Name:  "duration",
		Usage: "how long the round stays open, ignored if expiration is set",
		Value: time.Hour,
	}
	countFlag = &cli.Uint64Flag{
		Name:  "count",
		Usage: "the number of entries to buy",
		Value: 1,
	}
	paymentFlag = &cli.Uint64Flag{
		Name:  "payment",
		Usage: "the amount paid, defaults to count times the entry price",
	}
	accountFlag = &cli.StringFlag{
		Name:  "account",
		Usage: "read the payouts credited to this account instead of the pooled balance",
	}
	statusFlag = &cli.StringSliceFlag{
		Name:  "status",
		Usage: "filter rounds by status (open, awaiting_randomness, resolved)",
	}
)

// commands
var (
	openCmd = &cli.Command{
		Name:   "open",
		Usage:  "Open a new round, operator only",
		Action: openAction,
		Flags: []cli.Flag{
			entryPriceFlag, maxEntriesFlag, commissionRateFlag, expirationFlag, durationFlag,
		},
	}
	buyCmd = &cli.Command{
		Name:   "buy",
		Usage:  "Buy entries of an open round",
		Action: buyAction,
		Flags:  []cli.Flag{roundFlag, countFlag, paymentFlag},
	}
	roundCmd = &cli.Command{
		Name:   "round",
		Usage:  "Get info about a round",
		Action: roundAction,
		Flags:  []cli.Flag{roundFlag},
	}
	roundsCmd = &cli.Command{
		Name:   "rounds",
		Usage:  "List rounds",
		Action: roundsAction,
		Flags:  []cli.Flag{statusFlag},
	}
	remainingCmd = &cli.Command{
		Name:   "remaining",
		Usage:  "Get the number of entries still for sale in a round",
		Action: remainingAction,
		Flags:  []cli.Flag{roundFlag},
	}
	balanceCmd = &cli.Command{
		Name:   "balance",
		Usage:  "Get the funds pooled in unresolved rounds (operator only) or the balance of an account",
		Action: balanceAction,
		Flags:  []cli.Flag{accountFlag},
	}
	historyCmd = &cli.Command{
		Name:   "history",
		Usage:  "Get the event log of a round and check it against the stored round",
		Action: historyAction,
		Flags:  []cli.Flag{roundFlag},
	}
	drawCmd = &cli.Command{
		Name:   "draw",
		Usage:  "Close a round and request randomness to draw its winner",
		Action: drawAction,
		Flags:  []cli.Flag{roundFlag},
	}
	retryCmd = &cli.Command{
		Name:   "retry",
		Usage:  "Replace a stale randomness request, operator only",
		Action: retryAction,
		Flags:  []cli.Flag{roundFlag},
	}
	operatorCmd = &cli.Command{
		Name:   "operator",
		Usage:  "Get the operator identity",
		Action: operatorAction,
	}
)

type round struct {
	Id               uint64   `json:"id"`
	EntryPrice       uint64   `json:"entryPrice"`
	MaxEntries       uint64   `json:"maxEntries"`
	CommissionRate   uint64   `json:"commissionRate"`
	Expiration       int64    `json:"expiration"`
	Entries          []string `json:"entries"`
	Status           string   `json:"status"`
	PooledFunds      uint64   `json:"pooledFunds"`
	RemainingEntries uint64   `json:"remainingEntries"`
	OpenedAt         int64    `json:"openedAt"`
	ClosedAt         int64    `json:"closedAt,omitempty"`
	RequestId        string   `json:"requestId,omitempty"`
	Winner           string   `json:"winner,omitempty"`
	WinningIndex     uint64   `json:"winningIndex,omitempty"`
	Payout           uint64   `json:"payout,omitempty"`
	Commission       uint64   `json:"commission,omitempty"`
	ResolvedAt       int64    `json:"resolvedAt,omitempty"`
}

func openAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	expiration := ctx.Int64(expirationFlag.Name)
	if expiration <= 0 {
		expiration = time.Now().Add(ctx.Duration(durationFlag.Name)).Unix()
	}

	res, err := post[struct {
		Id uint64 `json:"id"`
	}](c, "/v1/rounds", map[string]interface{}{
		"entryPrice":     ctx.Uint64(entryPriceFlag.Name),
		"maxEntries":     ctx.Uint64(maxEntriesFlag.Name),
		"commissionRate": ctx.Uint64(commissionRateFlag.Name),
		"expiration":     expiration,
	})
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"id": res.Id, "expiration": expiration})
}

func buyAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	roundId := ctx.Uint64(roundFlag.Name)
	count := ctx.Uint64(countFlag.Name)
	payment := ctx.Uint64(paymentFlag.Name)
	if payment == 0 {
		r, err := get[round](c, fmt.Sprintf("/v1/rounds/%d", roundId))
		if err != nil {
			return err
		}
		payment = r.EntryPrice * count
	}

	if _, err := post[struct{}](c, fmt.Sprintf("/v1/rounds/%d/entries", roundId), map[string]uint64{
		"count":   count,
		"payment": payment,
	}); err != nil {
		return err
	}
	return printJSON(map[string]uint64{"round": roundId, "count": count, "paid": payment})
}

func roundAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	r, err := get[round](c, fmt.Sprintf("/v1/rounds/%d", ctx.Uint64(roundFlag.Name)))
	if err != nil {
		return err
	}
	return printJSON(r)
}

func roundsAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	path := "/v1/rounds"
	if statuses := ctx.StringSlice(statusFlag.Name); len(statuses) > 0 {
		query := url.Values{}
		for _, s := range statuses {
			query.Add("status", s)
		}
		path = fmt.Sprintf("%s?%s", path, query.Encode())
	}

	res, err := get[struct {
		Rounds []round `json:"rounds"`
	}](c, path)
	if err != nil {
		return err
	}
	return printJSON(res.Rounds)
}

func remainingAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	res, err := get[map[string]uint64](
		c, fmt.Sprintf("/v1/rounds/%d/remaining", ctx.Uint64(roundFlag.Name)),
	)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func balanceAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	path := "/v1/balance"
	if account := ctx.String(accountFlag.Name); len(account) > 0 {
		path = fmt.Sprintf("/v1/accounts/%s/balance", url.PathEscape(account))
	}

	res, err := get[map[string]uint64](c, path)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func historyAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	res, err := get[map[string]interface{}](
		c, fmt.Sprintf("/v1/rounds/%d/history", ctx.Uint64(roundFlag.Name)),
	)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func drawAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	res, err := post[map[string]string](
		c, fmt.Sprintf("/v1/rounds/%d/draw", ctx.Uint64(roundFlag.Name)), nil,
	)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func retryAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	res, err := post[map[string]string](
		c, fmt.Sprintf("/v1/rounds/%d/retry", ctx.Uint64(roundFlag.Name)), nil,
	)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func operatorAction(ctx *cli.Context) error {
	c, err := newClient(ctx)
	if err != nil {
		return err
	}

	res, err := get[map[string]string](c, "/v1/operator")
	if err != nil {
		return err
	}
	return printJSON(res)
}
