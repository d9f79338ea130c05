package handlers

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/domain"
)

// ErrInvalidNotation indicates a dice expression could not be parsed.
var ErrInvalidNotation = errors.New("dice notation must look like 2d6+3")

// Dice limits accepted by ParseNotation.
const (
	MaxDiceCount    = 100
	MaxDiceSides    = 1000
	MaxDiceModifier = 1000
)

var notationPattern = regexp.MustCompile(`^(\d*)d(\d+)\s*([+-]\s*\d+)?$`)

// DiceSpec is a parsed NdM+K expression.
type DiceSpec struct {
	Count    int
	Sides    int
	Modifier int
}

func (d DiceSpec) String() string {
	s := fmt.Sprintf("%dd%d", d.Count, d.Sides)
	if d.Modifier > 0 {
		s += fmt.Sprintf("+%d", d.Modifier)
	} else if d.Modifier < 0 {
		s += strconv.Itoa(d.Modifier)
	}
	return s
}

// ParseNotation parses expressions such as "d20", "2d6+3" or "4d8 - 1".
func ParseNotation(notation string) (DiceSpec, error) {
	m := notationPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(notation)))
	if m == nil {
		return DiceSpec{}, ErrInvalidNotation
	}
	spec := DiceSpec{Count: 1}
	var err error
	if m[1] != "" {
		if spec.Count, err = strconv.Atoi(m[1]); err != nil {
			return DiceSpec{}, ErrInvalidNotation
		}
	}
	if spec.Sides, err = strconv.Atoi(m[2]); err != nil {
		return DiceSpec{}, ErrInvalidNotation
	}
	if m[3] != "" {
		if spec.Modifier, err = strconv.Atoi(strings.ReplaceAll(m[3], " ", "")); err != nil {
			return DiceSpec{}, ErrInvalidNotation
		}
	}
	if spec.Count < 1 || spec.Count > MaxDiceCount ||
		spec.Sides < 2 || spec.Sides > MaxDiceSides ||
		spec.Modifier < -MaxDiceModifier || spec.Modifier > MaxDiceModifier {
		return DiceSpec{}, ErrInvalidNotation
	}
	return spec, nil
}

// RollResult captures every die rolled for one spec.
type RollResult struct {
	Spec    DiceSpec
	Results []int
	Total   int
}

// Dice is a seedable, goroutine-safe roller.
type Dice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDice returns a roller. A zero seed draws one from crypto/rand.
func NewDice(seed int64) *Dice {
	if seed == 0 {
		var b [8]byte
		if _, err := crand.Read(b[:]); err == nil {
			seed = int64(binary.LittleEndian.Uint64(b[:]))
		} else {
			seed = 1
		}
	}
	return &Dice{rng: rand.New(rand.NewSource(seed))}
}

// Roll rolls spec. Totals include the modifier.
func (d *Dice) Roll(spec DiceSpec) RollResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := RollResult{Spec: spec, Results: make([]int, spec.Count)}
	for i := range res.Results {
		res.Results[i] = d.rng.Intn(spec.Sides) + 1
		res.Total += res.Results[i]
	}
	res.Total += spec.Modifier
	return res
}

func (s *Set) rollDiceTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "roll_dice",
			Description: "Roll dice using standard notation such as 1d20+5",
			Category:    catalog.CategoryDice,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"notation": {Type: catalog.TypeString, Description: "Dice expression, e.g. 2d6+3", Required: true},
				"purpose":  {Type: catalog.TypeString, Description: "What the roll is for"},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			spec, err := ParseNotation(call.Params.String("notation"))
			if err != nil {
				return catalog.Result{}, domain.Fail(domain.ErrInvalidParameters, "%s: %v", call.Params.String("notation"), err)
			}
			roll := s.dice.Roll(spec)
			msg := fmt.Sprintf("Rolled %s: %v = %d", spec, roll.Results, roll.Total)
			if purpose := call.Params.String("purpose"); purpose != "" {
				msg = purpose + ": " + msg
			}
			return catalog.OK(msg, domain.Document{
				"notation": spec.String(),
				"rolls":    roll.Results,
				"modifier": spec.Modifier,
				"total":    roll.Total,
			}), nil
		}),
	}
}

// abilityModifier is the standard (score-10)/2 rounded down.
func abilityModifier(score int) int {
	if score >= 10 {
		return (score - 10) / 2
	}
	return (score - 11) / 2
}

func (s *Set) shortRestTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "short_rest",
			Description: "Take a short rest, spending hit dice to recover hit points",
			Category:    catalog.CategoryRest,
			Immediate:   true,
			Parameters: map[string]catalog.ParamSpec{
				"hit_dice": {Type: catalog.TypeInteger, Description: "Hit dice to spend", Min: catalog.Bound(0), Max: catalog.Bound(MaxLevel), Default: 1},
			},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			spend := call.Params.Int("hit_dice")
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				if spend > c.HitDice {
					return catalog.Result{}, domain.Fail(domain.ErrInsufficientResource,
						"%s has %d hit dice left, cannot spend %d", c.Name, c.HitDice, spend)
				}
				con := abilityModifier(c.Abilities.Constitution)
				healed := 0
				for i := 0; i < spend; i++ {
					roll := s.dice.Roll(DiceSpec{Count: 1, Sides: 8, Modifier: con})
					if roll.Total > 0 {
						healed += roll.Total
					}
				}
				old := c.CurrentHP
				c.HitDice -= spend
				c.CurrentHP = clamp(c.CurrentHP+healed, 0, c.MaxHP)
				if old == 0 && c.CurrentHP > 0 {
					c.RemoveCondition(conditionUnconscious)
				}
				c.Economy = domain.ActionEconomy{}
				return catalog.OK(
					fmt.Sprintf("%s rests and recovers %d HP (%d/%d HP)", c.Name, c.CurrentHP-old, c.CurrentHP, c.MaxHP),
					domain.Document{"hit_dice_spent": spend, "hit_dice_left": c.HitDice, "healed": c.CurrentHP - old},
				), nil
			})
		}),
	}
}

func (s *Set) longRestTool() catalog.Tool {
	return catalog.Tool{
		Definition: catalog.ToolDefinition{
			Name:        "long_rest",
			Description: "Take a long rest: full hit points and half the hit dice back",
			Category:    catalog.CategoryRest,
			Immediate:   true,
			Parameters:  map[string]catalog.ParamSpec{},
		},
		Handler: catalog.HandlerFunc(func(ctx context.Context, call catalog.Call) (catalog.Result, error) {
			return mutateCharacter(ctx, call, func(c *domain.Character) (catalog.Result, error) {
				if c.CurrentHP == 0 {
					return catalog.Result{}, domain.Fail(domain.ErrRuleViolation, "%s must have at least 1 HP to benefit from a long rest", c.Name)
				}
				regained := c.Level / 2
				if regained < 1 {
					regained = 1
				}
				c.HitDice = clamp(c.HitDice+regained, 0, c.Level)
				c.CurrentHP = c.MaxHP
				c.Economy = domain.ActionEconomy{}
				return catalog.OK(
					fmt.Sprintf("%s finishes a long rest (%d/%d HP)", c.Name, c.CurrentHP, c.MaxHP),
					domain.Document{"current_hp": c.CurrentHP, "hit_dice": c.HitDice},
				), nil
			})
		}),
	}
}
