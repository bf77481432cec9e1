package chain

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// ScriptType is the classification shown in a transaction output's
// scriptpubkey_type field.
type ScriptType string

const (
	ScriptFee                ScriptType = "fee"
	ScriptEmpty              ScriptType = "empty"
	ScriptOpReturn            ScriptType = "op_return"
	ScriptP2PK               ScriptType = "p2pk"
	ScriptP2PKH              ScriptType = "p2pkh"
	ScriptP2SH               ScriptType = "p2sh"
	ScriptV0P2WPKH           ScriptType = "v0_p2wpkh"
	ScriptV0P2WSH            ScriptType = "v0_p2wsh"
	ScriptV1P2TR             ScriptType = "v1_p2tr"
	ScriptProvablyUnspendable ScriptType = "provably_unspendable"
	ScriptUnknown            ScriptType = "unknown"
)

// ClassifyScript determines the output type by the same predicate
// order the wire format's rest surface expects: fee (handled by the
// caller for the explicit fee pseudo-output), empty, op_return, then
// the standard script classes, then provably-unspendable, then
// unknown.
func ClassifyScript(pkScript []byte) ScriptType {
	if len(pkScript) == 0 {
		return ScriptEmpty
	}
	class := txscript.GetScriptClass(pkScript)
	switch class {
	case txscript.NullDataTy:
		return ScriptOpReturn
	case txscript.PubKeyTy:
		return ScriptP2PK
	case txscript.PubKeyHashTy:
		return ScriptP2PKH
	case txscript.ScriptHashTy:
		return ScriptP2SH
	case txscript.WitnessV0PubKeyHashTy:
		return ScriptV0P2WPKH
	case txscript.WitnessV0ScriptHashTy:
		return ScriptV0P2WSH
	case txscript.WitnessV1TaprootTy:
		return ScriptV1P2TR
	}
	if txscript.IsUnspendable(pkScript) {
		return ScriptProvablyUnspendable
	}
	return ScriptUnknown
}

// ExtractAddress returns the single address a scriptPubKey pays to, if
// the script is a standard single-address type.
func ExtractAddress(pkScript []byte, params *chaincfg.Params) (string, bool) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil || len(addrs) != 1 {
		return "", false
	}
	return addrs[0].EncodeAddress(), true
}

// IsSpendable reports whether a scriptPubKey can ever be referenced by
// a future input: false for empty scripts, OP_RETURN outputs, and
// anything txscript considers provably unspendable.
func IsSpendable(pkScript []byte) bool {
	if len(pkScript) == 0 {
		return false
	}
	if txscript.GetScriptClass(pkScript) == txscript.NullDataTy {
		return false
	}
	return !txscript.IsUnspendable(pkScript)
}

// ExtractRedeemScript returns the last data push in a scriptSig, which
// is the serialized redeem script for a P2SH input.
func ExtractRedeemScript(scriptSig []byte) ([]byte, bool) {
	pushes, err := txscript.PushedData(scriptSig)
	if err != nil || len(pushes) == 0 {
		return nil, false
	}
	return pushes[len(pushes)-1], true
}

// DisasmScript renders a scriptPubKey/scriptSig as its asm form, the
// same text used by scriptpubkey_asm / scriptsig_asm fields. Returns
// empty string (not an error) on malformed scripts, matching the
// source's tolerant presentation layer.
func DisasmScript(script []byte) string {
	asm, err := txscript.DisasmString(script)
	if err != nil {
		return ""
	}
	return asm
}
