package ethereum

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// credibilityABI is the fixed interface of the credibility contract.
const credibilityABI = `[
  {"type":"function","name":"createPost","stateMutability":"nonpayable",
   "inputs":[{"name":"postId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"vote","stateMutability":"nonpayable",
   "inputs":[{"name":"postId","type":"uint256"},{"name":"isUpvote","type":"bool"}],"outputs":[]},
  {"type":"function","name":"getPost","stateMutability":"view",
   "inputs":[{"name":"postId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"postId","type":"uint256"},
     {"name":"userId","type":"address"},
     {"name":"upvotes","type":"uint256"},
     {"name":"downvotes","type":"uint256"},
     {"name":"isFinalized","type":"bool"}]}]},
  {"type":"function","name":"getUser","stateMutability":"view",
   "inputs":[{"name":"userId","type":"address"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"credibilityScore","type":"uint256"},
     {"name":"successfulPosts","type":"uint256"}]}]},
  {"type":"event","name":"PostCreated","anonymous":false,
   "inputs":[{"name":"postId","type":"uint256","indexed":false},
             {"name":"userId","type":"address","indexed":false}]},
  {"type":"event","name":"Voted","anonymous":false,
   "inputs":[{"name":"postId","type":"uint256","indexed":false},
             {"name":"userId","type":"address","indexed":false},
             {"name":"isUpvote","type":"bool","indexed":false},
             {"name":"weight","type":"uint256","indexed":false}]},
  {"type":"event","name":"PostFinalized","anonymous":false,
   "inputs":[{"name":"postId","type":"uint256","indexed":false}]}
]`

// CredibilityABI is parsed once at start-up.
var CredibilityABI = mustParseABI(credibilityABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("credibility ABI: " + err.Error())
	}
	return parsed
}

// postTuple and userTuple mirror the getPost/getUser return tuples field by
// field, so the decoded values convert directly.
type postTuple struct {
	PostId      *big.Int
	UserId      common.Address
	Upvotes     *big.Int
	Downvotes   *big.Int
	IsFinalized bool
}

type userTuple struct {
	CredibilityScore *big.Int
	SuccessfulPosts  *big.Int
}
