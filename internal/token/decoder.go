package token

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"rwaScope/internal/model"
)

// Decoder classifies raw logs into the closed set of domain event
// variants. Logs whose topic0 is not in the set decode to the explicit
// unrecognized variant rather than being dropped.
type Decoder struct {
	tokenABI    abi.ABI
	topicToName map[string]string
}

// NewDecoder builds a decoder over the embedded security-token ABI.
func NewDecoder() (*Decoder, error) {
	tokenABI, err := SecurityTokenABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(tokenABI.Events))
	for name, event := range tokenABI.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	return &Decoder{
		tokenABI:    tokenABI,
		topicToName: topicToName,
	}, nil
}

// Topics returns every known topic0, for building log filters.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, common.HexToHash(topic))
	}
	return out
}

// CanDecode checks whether topic0 belongs to a known event signature.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogEvent into its tagged variant. A log with an
// unknown topic0 yields Kind == KindUnrecognized and a nil error; a log
// that matches a known signature but fails to unpack returns an error.
func (d *Decoder) Decode(log model.LogEvent) (model.Decoded, error) {
	prov := model.Provenance{
		Network:     log.Network,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Timestamp:   log.Timestamp,
	}

	if len(log.Topics) == 0 {
		return model.Decoded{}, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return model.Decoded{Kind: model.KindUnrecognized, Provenance: prov}, nil
	}

	switch name {
	case "Transfer":
		return d.decodeTransfer(log, prov)
	case "IdentityRegistered":
		return d.decodeIdentityRegistered(log, prov)
	case "IdentityRemoved":
		return d.decodeIdentityRemoved(log, prov)
	case "ClaimAdded":
		return d.decodeClaim(log, prov, false)
	case "ClaimRemoved":
		return d.decodeClaim(log, prov, true)
	case "ModuleAdded":
		return d.decodeModuleChange(log, prov, model.ComplianceModuleAdded)
	case "ModuleRemoved":
		return d.decodeModuleChange(log, prov, model.ComplianceModuleRemoved)
	case "CountryBlacklisted":
		return d.decodeCountryRule(log, prov, "CountryBlacklisted", model.ComplianceCountryBlacklisted)
	case "CountryWhitelisted":
		return d.decodeCountryRule(log, prov, "CountryWhitelisted", model.ComplianceCountryWhitelisted)
	case "LockupSet":
		return d.decodeLockupSet(log, prov)
	case "HolderLimitSet":
		return d.decodeHolderLimitSet(log, prov)
	case "ComplianceViolation":
		return d.decodeViolation(log, prov)
	default:
		return model.Decoded{}, fmt.Errorf("unsupported event name: %s", name)
	}
}

func (d *Decoder) decodeTransfer(log model.LogEvent, prov model.Provenance) (model.Decoded, error) {
	event := d.tokenABI.Events["Transfer"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.Decoded{}, err
	}
	if len(values) != 1 {
		return model.Decoded{}, fmt.Errorf("unexpected transfer values: %d", len(values))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return model.Decoded{}, err
	}

	return model.Decoded{
		Kind:       model.KindTransfer,
		Provenance: prov,
		Transfer: &model.TransferEvent{
			Provenance: prov,
			From:       indexed.From.Hex(),
			To:         indexed.To.Hex(),
			Amount:     amount.String(),
		},
	}, nil
}

func (d *Decoder) decodeIdentityRegistered(log model.LogEvent, prov model.Provenance) (model.Decoded, error) {
	event := d.tokenABI.Events["IdentityRegistered"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		Investor common.Address
		Identity common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.Decoded{}, err
	}
	if len(values) != 1 {
		return model.Decoded{}, fmt.Errorf("unexpected identity values: %d", len(values))
	}
	country, err := asUint16(values[0])
	if err != nil {
		return model.Decoded{}, err
	}

	return model.Decoded{
		Kind:       model.KindIdentity,
		Provenance: prov,
		Identity: &model.IdentityEvent{
			Provenance:  prov,
			Investor:    indexed.Investor.Hex(),
			Identity:    indexed.Identity.Hex(),
			Action:      model.IdentityRegistered,
			CountryCode: country,
		},
	}, nil
}

func (d *Decoder) decodeIdentityRemoved(log model.LogEvent, prov model.Provenance) (model.Decoded, error) {
	event := d.tokenABI.Events["IdentityRemoved"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		Investor common.Address
		Identity common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	return model.Decoded{
		Kind:       model.KindIdentity,
		Provenance: prov,
		Identity: &model.IdentityEvent{
			Provenance: prov,
			Investor:   indexed.Investor.Hex(),
			Identity:   indexed.Identity.Hex(),
			Action:     model.IdentityRemoved,
		},
	}, nil
}

func (d *Decoder) decodeClaim(log model.LogEvent, prov model.Provenance, removed bool) (model.Decoded, error) {
	eventName := "ClaimAdded"
	if removed {
		eventName = "ClaimRemoved"
	}
	event := d.tokenABI.Events[eventName]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		Identity common.Address
		Topic    *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.Decoded{}, err
	}
	if len(values) == 0 {
		return model.Decoded{}, fmt.Errorf("unexpected claim values: %d", len(values))
	}
	issuer, err := asAddress(values[0])
	if err != nil {
		return model.Decoded{}, err
	}

	claim := &model.ClaimEvent{
		Provenance: prov,
		Identity:   indexed.Identity.Hex(),
		Topic:      indexed.Topic.String(),
		Issuer:     issuer.Hex(),
		Removed:    removed,
	}
	if !removed {
		if len(values) != 2 {
			return model.Decoded{}, fmt.Errorf("unexpected claim values: %d", len(values))
		}
		data, ok := values[1].([]byte)
		if !ok {
			return model.Decoded{}, fmt.Errorf("unsupported claim data type %T", values[1])
		}
		claim.DataHash = hexutil.Encode(data)
	}

	return model.Decoded{Kind: model.KindClaim, Provenance: prov, Claim: claim}, nil
}

func (d *Decoder) decodeModuleChange(log model.LogEvent, prov model.Provenance, action string) (model.Decoded, error) {
	eventName := "ModuleAdded"
	if action == model.ComplianceModuleRemoved {
		eventName = "ModuleRemoved"
	}
	event := d.tokenABI.Events[eventName]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		Module common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	return model.Decoded{
		Kind:       model.KindCompliance,
		Provenance: prov,
		Compliance: &model.ComplianceEvent{
			Provenance: prov,
			Module:     indexed.Module.Hex(),
			Action:     action,
		},
	}, nil
}

func (d *Decoder) decodeCountryRule(log model.LogEvent, prov model.Provenance, eventName, action string) (model.Decoded, error) {
	event := d.tokenABI.Events[eventName]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		Module common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.Decoded{}, err
	}
	if len(values) != 1 {
		return model.Decoded{}, fmt.Errorf("unexpected country values: %d", len(values))
	}
	country, err := asUint16(values[0])
	if err != nil {
		return model.Decoded{}, err
	}

	return model.Decoded{
		Kind:       model.KindCompliance,
		Provenance: prov,
		Compliance: &model.ComplianceEvent{
			Provenance:  prov,
			Module:      indexed.Module.Hex(),
			Action:      action,
			CountryCode: country,
		},
	}, nil
}

func (d *Decoder) decodeLockupSet(log model.LogEvent, prov model.Provenance) (model.Decoded, error) {
	event := d.tokenABI.Events["LockupSet"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		Module common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.Decoded{}, err
	}
	if len(values) != 2 {
		return model.Decoded{}, fmt.Errorf("unexpected lockup values: %d", len(values))
	}
	investor, err := asAddress(values[0])
	if err != nil {
		return model.Decoded{}, err
	}
	releaseTime, err := asBigInt(values[1])
	if err != nil {
		return model.Decoded{}, err
	}

	return model.Decoded{
		Kind:       model.KindCompliance,
		Provenance: prov,
		Compliance: &model.ComplianceEvent{
			Provenance: prov,
			Module:     indexed.Module.Hex(),
			Action:     model.ComplianceLockupSet,
			Details:    fmt.Sprintf("investor=%s release_time=%s", investor.Hex(), releaseTime.String()),
		},
	}, nil
}

func (d *Decoder) decodeHolderLimitSet(log model.LogEvent, prov model.Provenance) (model.Decoded, error) {
	event := d.tokenABI.Events["HolderLimitSet"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		Module common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.Decoded{}, err
	}
	if len(values) != 1 {
		return model.Decoded{}, fmt.Errorf("unexpected holder limit values: %d", len(values))
	}
	limit, err := asBigInt(values[0])
	if err != nil {
		return model.Decoded{}, err
	}

	return model.Decoded{
		Kind:       model.KindCompliance,
		Provenance: prov,
		Compliance: &model.ComplianceEvent{
			Provenance: prov,
			Module:     indexed.Module.Hex(),
			Action:     model.ComplianceHolderLimitSet,
			Details:    fmt.Sprintf("holder_limit=%s", limit.String()),
		},
	}, nil
}

func (d *Decoder) decodeViolation(log model.LogEvent, prov model.Provenance) (model.Decoded, error) {
	event := d.tokenABI.Events["ComplianceViolation"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.Decoded{}, err
	}

	var indexed struct {
		Module   common.Address
		Investor common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.Decoded{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.Decoded{}, err
	}
	if len(values) != 2 {
		return model.Decoded{}, fmt.Errorf("unexpected violation values: %d", len(values))
	}
	country, err := asUint16(values[0])
	if err != nil {
		return model.Decoded{}, err
	}
	reason, ok := values[1].(string)
	if !ok {
		return model.Decoded{}, fmt.Errorf("unsupported reason type %T", values[1])
	}

	return model.Decoded{
		Kind:       model.KindViolation,
		Provenance: prov,
		Violation: &model.ComplianceViolation{
			Provenance:  prov,
			Module:      indexed.Module.Hex(),
			Investor:    indexed.Investor.Hex(),
			CountryCode: country,
			Reason:      reason,
		},
	}, nil
}
