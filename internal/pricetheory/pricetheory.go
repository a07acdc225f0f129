// Package pricetheory runs a small explore/exploit card game per peer
// that nudges the fee controller's price multiplier up or down. Each peer has
// an integer "center" price clamped to [-10, 10] and a shuffled deck of
// nearby integer prices; the card currently in play contributes a
// 1.2^price fee multiplier, and earns credit for fee income while in
// play. When a card's lifetime expires it is discarded and a new one is
// drawn; once the deck runs dry, the best-earning discarded card
// becomes the new center and a fresh deck is shuffled around it.
package pricetheory

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gorm.io/gorm"

	"github.com/toneloc/ldkboss/internal/store"
)

const (
	maxPrice = 10

	positionDeck      = "deck"
	positionInPlay    = "in_play"
	positionDiscarded = "discarded"
)

// GetFeeModifier returns the fee multiplier contributed by the
// counterparty's currently in-play card, or 1.0 (neutral) if the peer
// has no card in play yet.
func GetFeeModifier(st *store.Store, counterpartyNodeID string) (float64, error) {
	inPlay, err := cardsInPosition(st, counterpartyNodeID, positionInPlay)
	if err != nil {
		return 0, fmt.Errorf("load in-play card for %s: %w", counterpartyNodeID, err)
	}
	if len(inPlay) == 0 {
		return 1.0, nil
	}
	return priceToMultiplier(inPlay[0].Price), nil
}

// priceToMultiplier maps an integer price to a fee multiplier: 1.2 to
// the power of the price, so positive prices scale fees up and negative
// prices scale them down.
func priceToMultiplier(price int) float64 {
	return math.Pow(1.2, float64(price))
}

// UpdateTick advances the card game by one tick for every connected
// peer: it ensures each peer has an initialized deck, then either
// decrements the in-play card's remaining lifetime, discards and draws
// a replacement once that lifetime expires, or draws a first card if
// none is in play yet.
func UpdateTick(st *store.Store, connectedPeers []string, cardLifetimeTicks, step int, rng *rand.Rand) error {
	for _, peerID := range connectedPeers {
		if err := ensureInitialized(st, peerID, step, cardLifetimeTicks, rng); err != nil {
			return fmt.Errorf("ensure initialized for %s: %w", peerID, err)
		}

		inPlay, err := cardsInPosition(st, peerID, positionInPlay)
		if err != nil {
			return fmt.Errorf("load in-play card for %s: %w", peerID, err)
		}

		switch {
		case len(inPlay) == 0:
			if err := drawCard(st, peerID, cardLifetimeTicks, step, rng); err != nil {
				return fmt.Errorf("draw card for %s: %w", peerID, err)
			}
		case inPlay[0].Lifetime <= 1:
			card := inPlay[0]
			card.Position = positionDiscarded
			card.Lifetime = 0
			if err := updateCard(st, card); err != nil {
				return fmt.Errorf("discard card for %s: %w", peerID, err)
			}
			if err := drawCard(st, peerID, cardLifetimeTicks, step, rng); err != nil {
				return fmt.Errorf("draw replacement card for %s: %w", peerID, err)
			}
		default:
			card := inPlay[0]
			card.Lifetime--
			if err := updateCard(st, card); err != nil {
				return fmt.Errorf("decrement lifetime for %s: %w", peerID, err)
			}
		}
	}
	return nil
}

// RecordEarnings credits the peer's currently in-play card with fee
// income earned while it was active.
func RecordEarnings(st *store.Store, counterpartyNodeID string, feeMsat uint64) error {
	if feeMsat == 0 {
		return nil
	}
	inPlay, err := cardsInPosition(st, counterpartyNodeID, positionInPlay)
	if err != nil {
		return fmt.Errorf("load in-play card for %s: %w", counterpartyNodeID, err)
	}
	if len(inPlay) == 0 {
		return nil
	}
	card := inPlay[0]
	card.EarningsMsat += feeMsat
	if err := updateCard(st, card); err != nil {
		return fmt.Errorf("record earnings for %s: %w", counterpartyNodeID, err)
	}
	return nil
}

// drawCard promotes the lowest-ordered deck card to in-play. If the
// deck is empty, it first closes out the round (promoting the best
// discarded card to the new center and shuffling a fresh deck) before
// retrying.
func drawCard(st *store.Store, peerID string, cardLifetimeTicks, step int, rng *rand.Rand) error {
	deck, err := cardsInPosition(st, peerID, positionDeck)
	if err != nil {
		return fmt.Errorf("load deck for %s: %w", peerID, err)
	}
	if len(deck) == 0 {
		if err := endRound(st, peerID, step, cardLifetimeTicks, rng); err != nil {
			return fmt.Errorf("end round for %s: %w", peerID, err)
		}
		deck, err = cardsInPosition(st, peerID, positionDeck)
		if err != nil {
			return fmt.Errorf("reload deck for %s: %w", peerID, err)
		}
		if len(deck) == 0 {
			return nil
		}
	}

	best := deck[0]
	for _, c := range deck[1:] {
		if c.DeckOrder < best.DeckOrder {
			best = c
		}
	}
	best.Position = positionInPlay
	best.Lifetime = cardLifetimeTicks
	return updateCard(st, best)
}

// endRound promotes the best-earning discarded card's price to be the
// new center, clamped to [-maxPrice, maxPrice], then wipes all of the
// peer's cards and shuffles a fresh deck around the new center.
func endRound(st *store.Store, peerID string, step, cardLifetimeTicks int, rng *rand.Rand) error {
	discarded, err := cardsInPosition(st, peerID, positionDiscarded)
	if err != nil {
		return fmt.Errorf("load discarded cards for %s: %w", peerID, err)
	}

	newCenter := 0
	if center, ok, err := loadCenter(st, peerID); err != nil {
		return fmt.Errorf("load center for %s: %w", peerID, err)
	} else if ok {
		newCenter = center
	}

	if len(discarded) > 0 {
		best := discarded[0]
		for _, c := range discarded[1:] {
			if c.EarningsMsat > best.EarningsMsat {
				best = c
			}
		}
		newCenter = clampPrice(best.Price)
	}

	if err := saveCenter(st, peerID, newCenter); err != nil {
		return fmt.Errorf("save center for %s: %w", peerID, err)
	}
	if err := st.DB().Where("counterparty_node_id = ?", peerID).Delete(&store.PriceTheoryCard{}).Error; err != nil {
		return fmt.Errorf("clear cards for %s: %w", peerID, err)
	}
	return createDeck(st, peerID, newCenter, step, cardLifetimeTicks, rng)
}

// ensureInitialized seeds a peer's first center (0) and deck the first
// time it is seen; it is a no-op for peers that already have cards.
func ensureInitialized(st *store.Store, peerID string, step, cardLifetimeTicks int, rng *rand.Rand) error {
	var count int64
	if err := st.DB().Model(&store.PriceTheoryCard{}).
		Where("counterparty_node_id = ?", peerID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count cards for %s: %w", peerID, err)
	}
	if count > 0 {
		return nil
	}
	if err := saveCenter(st, peerID, 0); err != nil {
		return fmt.Errorf("seed center for %s: %w", peerID, err)
	}
	return createDeck(st, peerID, 0, step, cardLifetimeTicks, rng)
}

// createDeck builds and shuffles 2*step+1 cards with integer prices
// centered on center, each clamped to [-maxPrice, maxPrice].
func createDeck(st *store.Store, peerID string, center, step, cardLifetimeTicks int, rng *rand.Rand) error {
	prices := make([]int, 0, 2*step+1)
	for p := center - step; p <= center+step; p++ {
		prices = append(prices, clampPrice(p))
	}
	rng.Shuffle(len(prices), func(i, j int) { prices[i], prices[j] = prices[j], prices[i] })

	for order, price := range prices {
		card := store.PriceTheoryCard{
			CounterpartyNodeID: peerID,
			Position:           positionDeck,
			DeckOrder:          order,
			Price:              price,
			Lifetime:           cardLifetimeTicks,
			EarningsMsat:       0,
		}
		if err := st.DB().Create(&card).Error; err != nil {
			return fmt.Errorf("create deck card for %s: %w", peerID, err)
		}
	}
	return nil
}

func clampPrice(price int) int {
	if price < -maxPrice {
		return -maxPrice
	}
	if price > maxPrice {
		return maxPrice
	}
	return price
}

func cardsInPosition(st *store.Store, peerID, position string) ([]store.PriceTheoryCard, error) {
	var cards []store.PriceTheoryCard
	err := st.DB().Where("counterparty_node_id = ? AND position = ?", peerID, position).Find(&cards).Error
	return cards, err
}

func updateCard(st *store.Store, card store.PriceTheoryCard) error {
	return st.DB().Save(&card).Error
}

func loadCenter(st *store.Store, peerID string) (int, bool, error) {
	var center store.PriceTheoryCenter
	err := st.DB().Where("counterparty_node_id = ?", peerID).First(&center).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return center.Price, true, nil
}

func saveCenter(st *store.Store, peerID string, price int) error {
	center := store.PriceTheoryCenter{CounterpartyNodeID: peerID, Price: price}
	return st.DB().Save(&center).Error
}
