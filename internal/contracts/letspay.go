// Package contracts holds the ABI definitions for the deployed LetsPay
// contracts. The escrow/credit contract lives on the payment chain; the
// attestation contract lives on a separate chain and only matters for its
// UserVerified event.
package contracts

// LetsPayABI is the call surface of the escrow/credit contract.
const LetsPayABI = `[
  {"type":"function","name":"signup","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"createEscrow","stateMutability":"nonpayable","inputs":[
    {"name":"merchant","type":"address"},
    {"name":"participants","type":"address[]"},
    {"name":"shares","type":"uint256[]"},
    {"name":"total","type":"uint256"}
  ],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"accept","stateMutability":"nonpayable","inputs":[
    {"name":"escrowId","type":"uint256"}
  ],"outputs":[]},
  {"type":"function","name":"repayCredit","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"getPendingEscrowsFor","stateMutability":"view","inputs":[
    {"name":"user","type":"address"}
  ],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"escrowDetails","stateMutability":"view","inputs":[
    {"name":"escrowId","type":"uint256"}
  ],"outputs":[
    {"name":"host","type":"address"},
    {"name":"merchant","type":"address"},
    {"name":"total","type":"uint256"},
    {"name":"status","type":"uint8"},
    {"name":"participants","type":"address[]"},
    {"name":"shares","type":"uint256[]"}
  ]},
  {"type":"function","name":"credit","stateMutability":"view","inputs":[
    {"name":"user","type":"address"}
  ],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"signedUp","stateMutability":"view","inputs":[
    {"name":"user","type":"address"}
  ],"outputs":[{"name":"","type":"bool"}]}
]`

// AttestationABI covers the single event the core consumes from the
// identity-attestation contract.
const AttestationABI = `[
  {"type":"event","name":"UserVerified","inputs":[
    {"name":"user","type":"address","indexed":true},
    {"name":"userIdentifier","type":"bytes32","indexed":true},
    {"name":"nationality","type":"string","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}
  ],"anonymous":false}
]`
