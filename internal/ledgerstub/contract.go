package ledgerstub

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/GUNREDDY14/nebula-nft-hub/internal/domain"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/marketplace"
	"github.com/GUNREDDY14/nebula-nft-hub/internal/normalize"
)

// RevertError is the node-style error for a reverted call. It carries the
// standard Error(string) payload as data.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// ErrorCode implements rpc.Error with the code nodes use for reverts.
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData implements rpc.DataError.
func (e *RevertError) ErrorData() interface{} {
	if e.Reason == "" {
		return "0x"
	}
	return hexutil.Encode(revertData(e.Reason))
}

var (
	errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]
	stringType, _ = abi.NewType("string", "", nil)
)

func revertData(reason string) []byte {
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		return nil
	}
	return append(append([]byte{}, errorSelector...), packed...)
}

func revert(reason string) error { return &RevertError{Reason: reason} }

// callCtx is one contract invocation. Handlers check every precondition
// before touching state and return early when commit is false.
type callCtx struct {
	from   common.Address
	value  *big.Int
	now    int64
	commit bool
	logs   []*types.Log
}

type handler func(l *Ledger, c *callCtx, args []any) ([]any, error)

var handlers = map[string]handler{
	"mintNFT":             (*Ledger).mintNFT,
	"listItemForSale":     (*Ledger).listItemForSale,
	"cancelListing":       (*Ledger).cancelListing,
	"buyItem":             (*Ledger).buyItem,
	"createAuction":       (*Ledger).createAuction,
	"placeBid":            (*Ledger).placeBid,
	"endAuction":          (*Ledger).endAuction,
	"transferNFT":         (*Ledger).transferNFT,
	"fetchMarketItems":    (*Ledger).fetchMarketItems,
	"fetchMyNFTs":         (*Ledger).fetchMyNFTs,
	"fetchItemsListed":    (*Ledger).fetchItemsListed,
	"fetchActiveAuctions": (*Ledger).fetchActiveAuctions,
	"getMarketItem":       (*Ledger).getMarketItem,
	"getAuction":          (*Ledger).getAuction,
	"tokenURI":            (*Ledger).tokenURI,
	"getListingPrice":     (*Ledger).getListingPrice,
	"getMintingPrice":     (*Ledger).getMintingPrice,
}

// execute runs calldata against the contract. Callers hold mu.
func (l *Ledger) execute(from common.Address, value *big.Int, data []byte, commit bool) ([]byte, []*types.Log, error) {
	if len(data) < 4 {
		return nil, nil, revert("")
	}
	method, err := l.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, revert("")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, revert("")
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 && !method.IsPayable() {
		return nil, nil, revert("")
	}
	h, ok := handlers[method.Name]
	if !ok {
		return nil, nil, revert("")
	}

	c := &callCtx{from: from, value: value, now: l.now().Unix(), commit: commit}
	outs, err := h(l, c, args)
	if err != nil {
		return nil, nil, err
	}
	ret, err := method.Outputs.Pack(outs...)
	if err != nil {
		return nil, nil, revert("")
	}
	return ret, c.logs, nil
}

func (l *Ledger) emit(c *callCtx, name string, args ...any) {
	ev := l.abi.Events[name]
	topics := []common.Hash{ev.ID}
	var plain []any
	for i, in := range ev.Inputs {
		if !in.Indexed {
			plain = append(plain, args[i])
			continue
		}
		switch v := args[i].(type) {
		case common.Address:
			topics = append(topics, common.BytesToHash(v.Bytes()))
		case *big.Int:
			// Indexed integers come from uint256 inputs and always fit a word.
			word, _ := normalize.Word(v)
			topics = append(topics, common.Hash(word))
		}
	}
	data, _ := ev.Inputs.NonIndexed().Pack(plain...)
	c.logs = append(c.logs, &types.Log{Address: l.address, Topics: topics, Data: data})
}

func tokenKey(v any) int64 {
	n, ok := v.(*big.Int)
	if !ok || !n.IsInt64() {
		return -1
	}
	return n.Int64()
}

func (l *Ledger) item(v any) (int64, *domain.MarketItem, error) {
	id := tokenKey(v)
	it, ok := l.items[id]
	if !ok {
		return 0, nil, revert("ERC721: invalid token ID")
	}
	return id, it, nil
}

func (l *Ledger) activeAuction(id int64) *domain.Auction {
	if a, ok := l.auctions[id]; ok && a.Active {
		return a
	}
	return nil
}

// ---------- writes ----------

func (l *Ledger) mintNFT(c *callCtx, args []any) ([]any, error) {
	if c.value.Cmp(l.mintingPrice) != 0 {
		return nil, revert("Price must be equal to minting price")
	}
	next := big.NewInt(l.nextTokenID + 1)
	if !c.commit {
		return []any{next}, nil
	}
	l.nextTokenID++
	id := l.nextTokenID
	l.uris[id] = args[0].(string)
	l.items[id] = &domain.MarketItem{
		TokenID: big.NewInt(id),
		Seller:  c.from,
		Owner:   c.from,
		Price:   new(big.Int),
	}
	l.emit(c, "Transfer", common.Address{}, c.from, big.NewInt(id))
	l.emit(c, "MarketItemCreated", big.NewInt(id), c.from, c.from, new(big.Int), false)
	return []any{next}, nil
}

func (l *Ledger) listItemForSale(c *callCtx, args []any) ([]any, error) {
	id, it, err := l.item(args[0])
	if err != nil {
		return nil, err
	}
	price := args[1].(*big.Int)
	switch {
	case it.Owner != c.from:
		return nil, revert("Only item owner can perform this operation")
	case l.activeAuction(id) != nil:
		return nil, revert("Item is in an active auction")
	case price.Sign() <= 0:
		return nil, revert("Price must be at least 1 wei")
	case c.value.Cmp(l.listingPrice) != 0:
		return nil, revert("Price must be equal to listing price")
	}
	if !c.commit {
		return nil, nil
	}
	it.Seller = c.from
	it.Owner = l.address
	it.Price = new(big.Int).Set(price)
	it.Sold = false
	it.IsListed = true
	l.emit(c, "Transfer", c.from, l.address, big.NewInt(id))
	l.emit(c, "MarketItemCreated", big.NewInt(id), c.from, l.address, it.Price, false)
	return nil, nil
}

func (l *Ledger) cancelListing(c *callCtx, args []any) ([]any, error) {
	id, it, err := l.item(args[0])
	if err != nil {
		return nil, err
	}
	switch {
	case !it.IsListed:
		return nil, revert("Item is not listed")
	case it.Seller != c.from:
		return nil, revert("Only seller can cancel listing")
	}
	if !c.commit {
		return nil, nil
	}
	it.Owner = c.from
	it.IsListed = false
	l.emit(c, "Transfer", l.address, c.from, big.NewInt(id))
	return nil, nil
}

func (l *Ledger) buyItem(c *callCtx, args []any) ([]any, error) {
	id, it, err := l.item(args[0])
	if err != nil {
		return nil, err
	}
	switch {
	case !it.IsListed || it.Sold:
		return nil, revert("Item is not for sale")
	case it.Seller == c.from:
		return nil, revert("Seller cannot buy own item")
	case c.value.Cmp(it.Price) != 0:
		return nil, revert("Please submit the asking price in order to complete the purchase")
	}
	if !c.commit {
		return nil, nil
	}
	seller := it.Seller
	it.Owner = c.from
	it.Sold = true
	it.IsListed = false
	l.credit(seller, it.Price)
	l.debit(l.address, it.Price)
	l.emit(c, "Transfer", l.address, c.from, big.NewInt(id))
	l.emit(c, "MarketItemSold", big.NewInt(id), seller, c.from, it.Price)
	return nil, nil
}

func (l *Ledger) createAuction(c *callCtx, args []any) ([]any, error) {
	id, it, err := l.item(args[0])
	if err != nil {
		return nil, err
	}
	start, duration := args[1].(*big.Int), args[2].(*big.Int)
	switch {
	case it.Owner != c.from:
		return nil, revert("Only item owner can perform this operation")
	case it.IsListed:
		return nil, revert("Item is listed for sale")
	case l.activeAuction(id) != nil:
		return nil, revert("Auction already active")
	case start.Sign() <= 0:
		return nil, revert("Starting price must be greater than 0")
	case duration.Sign() <= 0 || !duration.IsInt64():
		return nil, revert("Duration must be greater than 0")
	}
	if !c.commit {
		return nil, nil
	}
	end := new(big.Int).Add(big.NewInt(c.now), duration)
	it.Seller = c.from
	it.Owner = l.address
	l.auctions[id] = &domain.Auction{
		TokenID:       big.NewInt(id),
		Seller:        c.from,
		StartingPrice: new(big.Int).Set(start),
		HighestBid:    new(big.Int),
		EndTime:       end,
		Active:        true,
	}
	l.emit(c, "Transfer", c.from, l.address, big.NewInt(id))
	l.emit(c, "AuctionCreated", big.NewInt(id), c.from, start, end)
	return nil, nil
}

func (l *Ledger) placeBid(c *callCtx, args []any) ([]any, error) {
	id := tokenKey(args[0])
	a := l.activeAuction(id)
	switch {
	case a == nil:
		return nil, revert("Auction is not active")
	case big.NewInt(c.now).Cmp(a.EndTime) >= 0:
		return nil, revert("Auction has ended")
	case a.Seller == c.from:
		return nil, revert("Seller cannot bid on own auction")
	case !a.HasBid() && c.value.Cmp(a.StartingPrice) < 0:
		return nil, revert("Bid must be at least the starting price")
	case a.HasBid() && c.value.Cmp(a.HighestBid) <= 0:
		return nil, revert("Bid must be higher than current highest bid")
	}
	if !c.commit {
		return nil, nil
	}
	if a.HasBid() {
		l.credit(a.HighestBidder, a.HighestBid)
		l.debit(l.address, a.HighestBid)
	}
	a.HighestBid = new(big.Int).Set(c.value)
	a.HighestBidder = c.from
	l.emit(c, "BidPlaced", big.NewInt(id), c.from, c.value)
	return nil, nil
}

func (l *Ledger) endAuction(c *callCtx, args []any) ([]any, error) {
	id := tokenKey(args[0])
	a := l.activeAuction(id)
	switch {
	case a == nil:
		return nil, revert("Auction is not active")
	case big.NewInt(c.now).Cmp(a.EndTime) < 0:
		return nil, revert("Auction has not ended yet")
	}
	if !c.commit {
		return nil, nil
	}
	a.Active = false
	a.Ended = true
	it := l.items[id]
	winner := a.Seller
	if a.HasBid() {
		winner = a.HighestBidder
		l.credit(a.Seller, a.HighestBid)
		l.debit(l.address, a.HighestBid)
	}
	it.Owner = winner
	l.emit(c, "Transfer", l.address, winner, big.NewInt(id))
	l.emit(c, "AuctionEnded", big.NewInt(id), a.HighestBidder, a.HighestBid)
	return nil, nil
}

func (l *Ledger) transferNFT(c *callCtx, args []any) ([]any, error) {
	to := args[0].(common.Address)
	id, it, err := l.item(args[1])
	if err != nil {
		return nil, err
	}
	switch {
	case it.Owner != c.from:
		return nil, revert("Only item owner can perform this operation")
	case to == (common.Address{}):
		return nil, revert("Cannot transfer to the zero address")
	}
	if !c.commit {
		return nil, nil
	}
	it.Owner = to
	l.emit(c, "Transfer", c.from, to, big.NewInt(id))
	return nil, nil
}

// ---------- views ----------

func (l *Ledger) sortedItems(keep func(*domain.MarketItem) bool) []marketplace.MarketItemTuple {
	ids := make([]int64, 0, len(l.items))
	for id := range l.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]marketplace.MarketItemTuple, 0, len(ids))
	for _, id := range ids {
		if it := l.items[id]; keep(it) {
			out = append(out, marketplace.NewMarketItemTuple(*it))
		}
	}
	return out
}

func (l *Ledger) fetchMarketItems(_ *callCtx, _ []any) ([]any, error) {
	return []any{l.sortedItems(func(it *domain.MarketItem) bool {
		return it.IsListed && !it.Sold
	})}, nil
}

func (l *Ledger) fetchMyNFTs(c *callCtx, _ []any) ([]any, error) {
	return []any{l.sortedItems(func(it *domain.MarketItem) bool {
		return it.Owner == c.from
	})}, nil
}

func (l *Ledger) fetchItemsListed(c *callCtx, _ []any) ([]any, error) {
	return []any{l.sortedItems(func(it *domain.MarketItem) bool {
		return it.IsListed && it.Seller == c.from
	})}, nil
}

func (l *Ledger) fetchActiveAuctions(_ *callCtx, _ []any) ([]any, error) {
	ids := make([]int64, 0, len(l.auctions))
	for id, a := range l.auctions {
		if a.Active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]marketplace.AuctionTuple, 0, len(ids))
	for _, id := range ids {
		out = append(out, marketplace.NewAuctionTuple(*l.auctions[id]))
	}
	return []any{out}, nil
}

func (l *Ledger) getMarketItem(_ *callCtx, args []any) ([]any, error) {
	if it, ok := l.items[tokenKey(args[0])]; ok {
		return []any{marketplace.NewMarketItemTuple(*it)}, nil
	}
	return []any{marketplace.NewMarketItemTuple(domain.MarketItem{})}, nil
}

func (l *Ledger) getAuction(_ *callCtx, args []any) ([]any, error) {
	if a, ok := l.auctions[tokenKey(args[0])]; ok {
		return []any{marketplace.NewAuctionTuple(*a)}, nil
	}
	return []any{marketplace.NewAuctionTuple(domain.Auction{})}, nil
}

func (l *Ledger) tokenURI(_ *callCtx, args []any) ([]any, error) {
	id, _, err := l.item(args[0])
	if err != nil {
		return nil, err
	}
	return []any{l.uris[id]}, nil
}

func (l *Ledger) getListingPrice(_ *callCtx, _ []any) ([]any, error) {
	return []any{new(big.Int).Set(l.listingPrice)}, nil
}

func (l *Ledger) getMintingPrice(_ *callCtx, _ []any) ([]any, error) {
	return []any{new(big.Int).Set(l.mintingPrice)}, nil
}
