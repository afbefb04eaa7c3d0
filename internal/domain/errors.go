package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidMarket       = errors.New("invalid market parameters")
	ErrMarketNotOpen       = errors.New("market is not accepting bets")
	ErrBettingClosed       = errors.New("betting deadline has passed")
	ErrInvalidOutcome      = errors.New("invalid outcome index")
	ErrStakeTooSmall       = errors.New("stake below minimum")
	ErrCollateralTooSmall  = errors.New("oracle collateral below minimum")
	ErrNotOracleEligible   = errors.New("market has no event correlation key")
	ErrResolutionTooEarly  = errors.New("resolution window has not opened")
	ErrMarketTerminal      = errors.New("market already resolved or voided")
	ErrNotSettled          = errors.New("market is not resolved or voided")
	ErrAlreadyClaimed      = errors.New("winnings already claimed")
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrRequestUnknown      = errors.New("unknown or expired resolution request")
	ErrAttestationInvalid  = errors.New("attestation record failed verification")
)
